package debuginfo

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dwarfbind/dwarfbind/internal/config"
	"github.com/dwarfbind/dwarfbind/internal/errs"
	"github.com/dwarfbind/dwarfbind/internal/progress"
)

// maxConsecutiveEntryErrors bounds how many unreadable entries in a row
// are tolerated before a file's walk is abandoned. Partial results are
// kept regardless.
const maxConsecutiveEntryErrors = 8

// CollectResult holds the reconciled per-library type information.
type CollectResult struct {
	Structures map[string]StructureInfo
	Typedefs   map[string]TypedefInfo
	// Signatures are best-effort ctypes signatures for exported
	// functions whose DW_TAG_subprogram entries were found.
	Signatures map[string]FunctionSignature
}

// addStructure applies the reconciliation order: a later candidate
// replaces an earlier one only when it strictly outranks it.
func (r *CollectResult) addStructure(info StructureInfo) {
	if existing, seen := r.Structures[info.Name]; !seen || info.Score.Better(existing.Score) {
		r.Structures[info.Name] = info
	}
}

// addTypedef applies the same reconciliation order for typedefs.
func (r *CollectResult) addTypedef(name string, info TypedefInfo) {
	if existing, seen := r.Typedefs[name]; !seen || info.Score.Better(existing.Score) {
		r.Typedefs[name] = info
	}
}

// Collector walks the resolved debug trees and produces reconciled
// structure and typedef maps with quality scoring.
type Collector struct {
	weights  config.ScoreWeights
	maxDepth int
	logger   zerolog.Logger
	sink     progress.Sink
}

// NewCollector creates a collector. A nil sink defaults to progress.Nop.
func NewCollector(cfg *config.Config, logger zerolog.Logger, sink progress.Sink) *Collector {
	if sink == nil {
		sink = progress.Nop{}
	}
	return &Collector{
		weights:  cfg.Scoring,
		maxDepth: cfg.MaxAliasDepth,
		logger:   logger.With().Str("component", "collector").Logger(),
		sink:     sink,
	}
}

// Collect walks every compilation unit in the main debug file, then in
// the auxiliary file if present. When the same name is produced by more
// than one unit, the highest-scoring candidate is retained; equal scores
// keep the earliest-seen candidate, so results are deterministic in
// compilation-unit order. A malformed entry is skipped with a warning;
// the walk never aborts because of one bad entry.
func (c *Collector) Collect(set DebugFileSet, exported []ExportedFunction) *CollectResult {
	result := &CollectResult{
		Structures: make(map[string]StructureInfo),
		Typedefs:   make(map[string]TypedefInfo),
		Signatures: make(map[string]FunctionSignature),
	}

	if set.Empty() {
		return result
	}

	wanted := make(map[string]bool, len(exported))
	for _, fn := range exported {
		wanted[fn.Name] = true
	}

	files := []*DebugFile{set.Main}
	if set.HasAuxiliary() {
		files = append(files, set.Auxiliary)
	}

	for _, file := range files {
		if !file.Valid {
			c.logger.Warn().Str("debug_file", file.Path).Msg("Skipping invalid debug file")
			continue
		}
		c.collectFile(file.Path, wanted, result)
	}

	c.logger.Info().
		Int("structures", len(result.Structures)).
		Int("typedefs", len(result.Typedefs)).
		Int("signatures", len(result.Signatures)).
		Msg("Type collection complete")

	return result
}

func (c *Collector) collectFile(path string, wanted map[string]bool, result *CollectResult) {
	f, err := elf.Open(path)
	if err != nil {
		c.logger.Warn().Str("debug_file", path).Err(err).Msg("Failed to open debug file")
		return
	}
	defer errs.DeferClose(c.logger, f, "failed to close debug file")

	data, err := f.DWARF()
	if err != nil {
		c.logger.Warn().Str("debug_file", path).Err(err).Msg("Failed to read DWARF data")
		return
	}

	c.sink.Begin(countUnits(data))
	defer c.sink.End()

	reader := data.Reader()
	badStreak := 0
	for {
		entry, err := reader.Next()
		if err != nil {
			badStreak++
			c.logger.Warn().Err(err).Str("debug_file", path).
				Msg("Malformed debug entry, skipping")
			if badStreak >= maxConsecutiveEntryErrors {
				c.logger.Warn().Str("debug_file", path).
					Msg("Too many malformed entries, keeping partial results")
				return
			}
			continue
		}
		if entry == nil {
			return
		}
		badStreak = 0

		switch entry.Tag {
		case dwarf.TagCompileUnit:
			c.sink.Advance(1)

		case dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagClassType:
			c.collectStructure(data, entry, result)

		case dwarf.TagTypedef:
			c.collectTypedef(data, entry, result)

		case dwarf.TagSubprogram:
			c.collectSignature(data, reader, entry, wanted, result)
		}
	}
}

// countUnits makes a cheap child-skipping pass to learn the compilation
// unit total for progress reporting.
func countUnits(data *dwarf.Data) int {
	reader := data.Reader()
	count := 0
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			return count
		}
		if entry.Tag == dwarf.TagCompileUnit {
			count++
			reader.SkipChildren()
		}
	}
}

// collectStructure records a named aggregate's field layout. Anonymous
// aggregates and forward declarations are skipped.
func (c *Collector) collectStructure(data *dwarf.Data, entry *dwarf.Entry, result *CollectResult) {
	name, _ := entry.Val(dwarf.AttrName).(string)
	if name == "" {
		return
	}
	if decl, _ := entry.Val(dwarf.AttrDeclaration).(bool); decl {
		return
	}

	typ, err := data.Type(entry.Offset)
	if err != nil {
		c.warnMalformed(name, err)
		return
	}
	st, ok := typ.(*dwarf.StructType)
	if !ok || st.Incomplete {
		return
	}

	info := StructureInfo{Name: name, Kind: st.Kind, Size: st.ByteSize}
	for _, field := range st.Field {
		if field == nil || field.Name == "" {
			// Anonymous members contribute layout only; the generator
			// pads gaps from the recorded offsets.
			continue
		}
		desc := describeType(field.Type, c.maxDepth)
		size := int64(-1)
		if field.Type != nil {
			size = field.Type.Size()
		}
		info.Fields = append(info.Fields, Field{
			Name:       field.Name,
			Descriptor: desc.expr,
			Offset:     field.ByteOffset,
			Size:       size,
		})
	}

	sizeScore := 0
	if st.ByteSize >= 0 {
		sizeScore = c.weights.SizeKnown
	}
	info.Score = QualityScore{Base: c.weights.Struct, Size: sizeScore}

	result.addStructure(info)
}

// collectTypedef resolves a typedef's alias chain to its terminal
// representation and reconciles it against earlier candidates.
func (c *Collector) collectTypedef(data *dwarf.Data, entry *dwarf.Entry, result *CollectResult) {
	name, _ := entry.Val(dwarf.AttrName).(string)
	if name == "" {
		return
	}

	typ, err := data.Type(entry.Offset)
	if err != nil {
		c.warnMalformed(name, err)
		return
	}

	result.addTypedef(name, c.typedefInfo(typ))
}

// typedefInfo classifies a typedef's terminal representation and scores
// it with the configured weights.
func (c *Collector) typedefInfo(typ dwarf.Type) TypedefInfo {
	desc := describeType(typ, c.maxDepth)

	sizeScore := 0
	if desc.sizeKnown {
		sizeScore = c.weights.SizeKnown
	}

	info := TypedefInfo{
		Representation: desc.expr,
		Score:          QualityScore{Size: sizeScore},
	}

	switch desc.kind {
	case repFuncPointer:
		info.Score.Base = c.weights.FunctionPointer
		info.Description = "pointer to function type"
	case repStruct:
		info.Score.Base = c.weights.Struct
		info.Description = fmt.Sprintf("alias for struct %s", desc.structName)
	case repPrimitive:
		info.Score.Base = c.weights.Primitive
	case repPointer:
		info.Score.Base = c.weights.Pointer
		if desc.structName != "" {
			info.Description = fmt.Sprintf("pointer to struct %s", desc.structName)
		}
	default:
		info.Score.Base = c.weights.Opaque
		info.Description = "unresolved type, opaque fallback"
	}

	return info
}

// collectSignature extracts a best-effort ctypes signature from an
// external subprogram entry matching an exported function. Parameter and
// return types degrade individually to the opaque fallback.
func (c *Collector) collectSignature(data *dwarf.Data, reader *dwarf.Reader, entry *dwarf.Entry, wanted map[string]bool, result *CollectResult) {
	name, _ := entry.Val(dwarf.AttrName).(string)
	if name == "" || !wanted[name] {
		return
	}
	if external, _ := entry.Val(dwarf.AttrExternal).(bool); !external {
		return
	}
	if _, seen := result.Signatures[name]; seen {
		return
	}

	sig := FunctionSignature{Name: name, Return: "None"}
	if retOff, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
		if retType, err := data.Type(retOff); err == nil {
			sig.Return = describeType(retType, c.maxDepth).expr
		}
	}

	if !entry.Children {
		result.Signatures[name] = sig
		return
	}

	// Walk direct children only; nested scopes are tracked by depth so
	// inner lexical blocks cannot leak parameters.
	depth := 0
	for {
		child, err := reader.Next()
		if err != nil || child == nil {
			break
		}
		if child.Tag == 0 {
			if depth == 0 {
				break
			}
			depth--
			continue
		}

		if depth == 0 && child.Tag == dwarf.TagFormalParameter {
			param := OpaqueFallback
			if pOff, ok := child.Val(dwarf.AttrType).(dwarf.Offset); ok {
				if pType, err := data.Type(pOff); err == nil {
					param = describeType(pType, c.maxDepth).expr
				}
			}
			sig.Params = append(sig.Params, param)
		}
		if depth == 0 && child.Tag == dwarf.TagUnspecifiedParameters {
			// Variadic; argtypes cannot express it, leave what we have.
			sig.Params = append(sig.Params, "...")
		}

		if child.Children {
			depth++
		}
	}

	result.Signatures[name] = sig
}

func (c *Collector) warnMalformed(name string, err error) {
	c.logger.Warn().
		Str("entry", name).
		Err(errs.Wrap(errs.ErrMalformedDebugEntry, err.Error())).
		Msg("Skipping unparsable debug entry")
}
