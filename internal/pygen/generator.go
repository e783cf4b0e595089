// Package pygen assembles the merged type, constant and symbol
// information into a deterministic Python ctypes binding artifact.
package pygen

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dwarfbind/dwarfbind/internal/debuginfo"
	"github.com/dwarfbind/dwarfbind/internal/errs"
	"github.com/dwarfbind/dwarfbind/internal/preprocess"
	"github.com/dwarfbind/dwarfbind/pkg/version"
)

// Input is everything the generator needs for one library's artifact.
type Input struct {
	// LibraryName is the embedded SONAME, or "" when absent.
	LibraryName string
	// LibraryPath is the input image path (naming fallback and loader
	// candidate).
	LibraryPath string
	BuildID     string
	JobID       string

	Structures map[string]debuginfo.StructureInfo
	Typedefs   map[string]debuginfo.TypedefInfo
	Signatures map[string]debuginfo.FunctionSignature
	Exported   []debuginfo.ExportedFunction
	Macros     preprocess.MacroTable
}

// Generator emits binding artifacts.
type Generator struct {
	logger zerolog.Logger
}

// New creates a generator.
func New(logger zerolog.Logger) *Generator {
	return &Generator{logger: logger.With().Str("component", "generator").Logger()}
}

// Generate renders the artifact and writes it to outputPath with
// normalized whitespace, creating unambiguous parent directories.
// It returns the synthesized usage example.
func (g *Generator) Generate(in Input, outputPath string) (string, error) {
	content, usage := g.Render(in)

	if err := EnsureParentDir(outputPath); err != nil {
		return "", fmt.Errorf("failed to create output directory for %s: %w", outputPath, err)
	}
	if err := os.WriteFile(outputPath, NormalizeWhitespace(content), 0o644); err != nil { // #nosec G306
		return "", fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	g.logger.Info().
		Str("artifact", outputPath).
		Int("structures", len(in.Structures)).
		Int("typedefs", len(in.Typedefs)).
		Int("constants", len(in.Macros)).
		Int("functions", len(in.Exported)).
		Msg("Artifact written")

	return usage, nil
}

// Render produces the artifact content and a usage example referencing
// the first emitted structure and exported function.
func (g *Generator) Render(in Input) ([]byte, string) {
	var b strings.Builder

	// Top-level names claimed by the module scaffolding itself.
	names := newNameRegistry("_load_library", "_lib", "_bind", "ctypes")

	displayName := in.LibraryName
	if displayName == "" {
		displayName = filepath.Base(in.LibraryPath)
	}

	g.writeHeader(&b, in, displayName)
	g.writeLoader(&b, in, displayName)

	structNames := g.writeStructures(&b, in, names)
	g.writeTypedefs(&b, in, names, structNames)
	g.writeConstants(&b, in, names)
	firstFunc := g.writeFunctions(&b, in, names, structNames)

	moduleName := strings.TrimSuffix(ArtifactName(in.LibraryName, in.LibraryPath), ArtifactExt)
	usage := g.usageExample(moduleName, firstStructName(in, structNames), firstFunc)
	b.WriteString("\n")
	for _, line := range strings.Split(strings.TrimRight(usage, "\n"), "\n") {
		b.WriteString("# " + line + "\n")
	}

	return []byte(b.String()), usage
}

func (g *Generator) writeHeader(b *strings.Builder, in Input, displayName string) {
	fmt.Fprintf(b, "\"\"\"ctypes bindings for %s.\n\n", displayName)
	fmt.Fprintf(b, "Generated by dwarfbind %s; do not edit.\n", version.Short())
	fmt.Fprintf(b, "Build ID: %s\n", in.BuildID)
	if in.JobID != "" {
		fmt.Fprintf(b, "Job: %s\n", in.JobID)
	}
	b.WriteString("\"\"\"\n\n")
	b.WriteString("from ctypes import *  # noqa: F401,F403\n\n")
}

func (g *Generator) writeLoader(b *strings.Builder, in Input, displayName string) {
	candidates := []string{}
	if in.LibraryName != "" {
		candidates = append(candidates, in.LibraryName)
	}
	base := filepath.Base(in.LibraryPath)
	if base != "" && base != in.LibraryName {
		candidates = append(candidates, base)
	}

	b.WriteString("def _load_library():\n")
	fmt.Fprintf(b, "    for _candidate in (%s):\n", pyStringTuple(candidates))
	b.WriteString("        try:\n")
	b.WriteString("            return CDLL(_candidate)\n")
	b.WriteString("        except OSError:\n")
	b.WriteString("            continue\n")
	fmt.Fprintf(b, "    raise OSError(\"unable to load %s\")\n\n\n", displayName)
	b.WriteString("_lib = _load_library()\n\n\n")
	b.WriteString("def _bind(name):\n")
	b.WriteString("    try:\n")
	b.WriteString("        return getattr(_lib, name)\n")
	b.WriteString("    except AttributeError:\n")
	b.WriteString("        return None\n\n")
}

// writeStructures emits structure classes in dependency order and
// returns the raw-name -> emitted-identifier map.
func (g *Generator) writeStructures(b *strings.Builder, in Input, names *nameRegistry) map[string]string {
	order := structureOrder(in.Structures)
	emitted := make(map[string]string, len(order))

	// Claim identifiers in emission order so collision suffixes are
	// stable.
	for _, raw := range order {
		id, suffixed := names.Claim(raw)
		if suffixed {
			g.warnCollision(raw, id)
		}
		emitted[raw] = id
	}

	for _, raw := range order {
		info := in.Structures[raw]
		id := emitted[raw]

		base := "Structure"
		if info.IsUnion() {
			base = "Union"
		}
		fmt.Fprintf(b, "\nclass %s(%s):\n", id, base)
		if info.Size >= 0 {
			fmt.Fprintf(b, "    # total size: %d bytes\n", info.Size)
		}
		fields := g.renderFields(info, emitted)
		if len(fields) == 0 {
			b.WriteString("    pass\n")
			continue
		}
		b.WriteString("    _fields_ = [\n")
		for _, f := range fields {
			fmt.Fprintf(b, "        (%q, %s),\n", f.name, f.expr)
		}
		b.WriteString("    ]\n")
	}
	if len(order) > 0 {
		b.WriteString("\n")
	}
	return emitted
}

type renderedField struct {
	name string
	expr string
}

// renderFields lays out an aggregate's members so ctypes reproduces the
// recorded offsets. Union members all sit at offset zero, so they are
// emitted directly (with a sizing pad when the recorded size exceeds the
// widest member). Structure members are laid out sequentially with
// padding fields for gaps; a member whose recorded offset falls inside
// storage already emitted (bitfields sharing one storage unit) is
// dropped so no field ever lands past its recorded offset. A field whose
// type cannot be expressed degrades to padding rather than blocking the
// artifact.
func (g *Generator) renderFields(info debuginfo.StructureInfo, structs map[string]string) []renderedField {
	if info.IsUnion() {
		return g.renderUnionFields(info, structs)
	}

	var out []renderedField
	fieldNames := newNameRegistry()
	cursor := int64(0)
	padIndex := 0

	pad := func(upTo int64) {
		if upTo > cursor {
			out = append(out, renderedField{
				name: fmt.Sprintf("_pad%d", padIndex),
				expr: fmt.Sprintf("(c_char * %d)", upTo-cursor),
			})
			padIndex++
			cursor = upTo
		}
	}

	for _, field := range info.Fields {
		expr, ok := fieldExpr(field.Descriptor, structs)
		if !ok {
			// Unknown aggregate by value: leave a gap, padding covers it.
			continue
		}
		if field.Offset < cursor {
			// Storage already emitted covers this member; appending it
			// would shift it past its recorded offset.
			g.logger.Debug().
				Str("aggregate", info.Name).
				Str("field", field.Name).
				Msg("Dropping member overlapping already-emitted storage")
			continue
		}
		pad(field.Offset)
		name, _ := fieldNames.Claim(field.Name)
		out = append(out, renderedField{name: name, expr: expr})
		if field.Size > 0 && field.Offset+field.Size > cursor {
			cursor = field.Offset + field.Size
		}
	}
	if info.Size > 0 {
		pad(info.Size)
	}
	return out
}

// renderUnionFields emits union members directly; ctypes overlays every
// Union field at offset zero. A sizing pad covers recorded trailing
// bytes no member spans.
func (g *Generator) renderUnionFields(info debuginfo.StructureInfo, structs map[string]string) []renderedField {
	var out []renderedField
	fieldNames := newNameRegistry()
	widest := int64(0)

	for _, field := range info.Fields {
		expr, ok := fieldExpr(field.Descriptor, structs)
		if !ok {
			continue
		}
		name, _ := fieldNames.Claim(field.Name)
		out = append(out, renderedField{name: name, expr: expr})
		if field.Size > widest {
			widest = field.Size
		}
	}

	if info.Size > 0 && info.Size > widest {
		out = append(out, renderedField{
			name: "_pad0",
			expr: fmt.Sprintf("(c_char * %d)", info.Size),
		})
	}
	return out
}

// fieldExpr resolves a field descriptor against the emitted structure
// names. Descriptors naming an unknown aggregate are unexpressable.
func fieldExpr(descriptor string, structs map[string]string) (string, bool) {
	if strings.HasPrefix(descriptor, "c_") {
		return descriptor, true
	}
	// Array form "(elem * N)".
	if strings.HasPrefix(descriptor, "(") {
		inner := strings.TrimPrefix(descriptor, "(")
		star := strings.Index(inner, " * ")
		if star < 0 {
			return "", false
		}
		elem := inner[:star]
		if strings.HasPrefix(elem, "c_") {
			return descriptor, true
		}
		if id, ok := structs[elem]; ok {
			return "(" + id + inner[star:], true
		}
		return "", false
	}
	if id, ok := structs[descriptor]; ok {
		return id, true
	}
	return "", false
}

// structureOrder returns raw names topologically sorted by
// embedded-aggregate dependency, alphabetical among unconstrained
// entries. Pointer references carry no ordering constraint. Should a
// dependency cycle survive (malformed input), the remainder is emitted
// alphabetically rather than dropped.
func structureOrder(structures map[string]debuginfo.StructureInfo) []string {
	all := make([]string, 0, len(structures))
	for name := range structures {
		all = append(all, name)
	}
	sort.Strings(all)

	deps := make(map[string][]string, len(all))
	for _, name := range all {
		var need []string
		for _, field := range structures[name].Fields {
			dep := embeddedAggregate(field.Descriptor)
			if dep != "" && dep != name {
				if _, known := structures[dep]; known {
					need = append(need, dep)
				}
			}
		}
		deps[name] = need
	}

	emitted := make(map[string]bool, len(all))
	var order []string
	for len(order) < len(all) {
		progressed := false
		for _, name := range all {
			if emitted[name] {
				continue
			}
			ready := true
			for _, dep := range deps[name] {
				if !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				emitted[name] = true
				order = append(order, name)
				progressed = true
			}
		}
		if !progressed {
			for _, name := range all {
				if !emitted[name] {
					emitted[name] = true
					order = append(order, name)
				}
			}
		}
	}
	return order
}

// embeddedAggregate extracts the aggregate name a field descriptor
// embeds by value, if any ("Point" or "(Point * 4)"; never pointers).
func embeddedAggregate(descriptor string) string {
	if strings.HasPrefix(descriptor, "c_") {
		return ""
	}
	if strings.HasPrefix(descriptor, "(") {
		inner := strings.TrimPrefix(descriptor, "(")
		star := strings.Index(inner, " * ")
		if star < 0 {
			return ""
		}
		elem := inner[:star]
		if strings.HasPrefix(elem, "c_") {
			return ""
		}
		return elem
	}
	return descriptor
}

func (g *Generator) writeTypedefs(b *strings.Builder, in Input, names *nameRegistry, structs map[string]string) {
	if len(in.Typedefs) == 0 {
		return
	}

	raws := make([]string, 0, len(in.Typedefs))
	for name := range in.Typedefs {
		raws = append(raws, name)
	}
	sort.Strings(raws)

	b.WriteString("\n# Typedefs\n")
	for _, raw := range raws {
		info := in.Typedefs[raw]
		id, suffixed := names.Claim(raw)
		if suffixed {
			g.warnCollision(raw, id)
		}

		repr := info.Representation
		if !strings.HasPrefix(repr, "c_") && !strings.HasPrefix(repr, "(") {
			// Structure reference: degrade to the opaque fallback when
			// the structure was never emitted.
			if structID, ok := structs[repr]; ok {
				repr = structID
			} else {
				repr = debuginfo.OpaqueFallback
			}
		}

		if info.Description != "" {
			fmt.Fprintf(b, "%s = %s  # %s\n", id, repr, info.Description)
		} else {
			fmt.Fprintf(b, "%s = %s\n", id, repr)
		}
	}
}

func (g *Generator) writeConstants(b *strings.Builder, in Input, names *nameRegistry) {
	if len(in.Macros) == 0 {
		return
	}

	raws := make([]string, 0, len(in.Macros))
	for name := range in.Macros {
		raws = append(raws, name)
	}
	sort.Strings(raws)

	b.WriteString("\n# Constants\n")
	for _, raw := range raws {
		id, suffixed := names.Claim(raw)
		if suffixed {
			g.warnCollision(raw, id)
		}
		fmt.Fprintf(b, "%s = %s\n", id, in.Macros[raw])
	}
}

// writeFunctions emits exported-function declarations and returns the
// first emitted identifier, for the usage example.
func (g *Generator) writeFunctions(b *strings.Builder, in Input, names *nameRegistry, structs map[string]string) string {
	if len(in.Exported) == 0 {
		return ""
	}

	b.WriteString("\n# Exported functions\n")
	first := ""
	for _, fn := range in.Exported {
		id, suffixed := names.Claim(fn.Name)
		if suffixed {
			g.warnCollision(fn.Name, id)
		}
		if first == "" {
			first = id
		}

		fmt.Fprintf(b, "%s = _bind(%q)\n", id, fn.Name)

		sig, ok := in.Signatures[fn.Name]
		if !ok {
			continue
		}
		if variadic(sig.Params) {
			// argtypes cannot express variadic functions; leave the
			// declaration opaque.
			continue
		}
		params := make([]string, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = signatureExpr(p, structs)
		}
		fmt.Fprintf(b, "if %s is not None:\n", id)
		fmt.Fprintf(b, "    %s.restype = %s\n", id, signatureExpr(sig.Return, structs))
		fmt.Fprintf(b, "    %s.argtypes = [%s]\n", id, strings.Join(params, ", "))
	}
	return first
}

// signatureExpr resolves a signature descriptor against the emitted
// structure names, degrading a structure that was never emitted to the
// opaque fallback so the declaration never references an undefined name.
func signatureExpr(descriptor string, structs map[string]string) string {
	if descriptor == "None" {
		return descriptor
	}
	if expr, ok := fieldExpr(descriptor, structs); ok {
		return expr
	}
	return debuginfo.OpaqueFallback
}

func variadic(params []string) bool {
	for _, p := range params {
		if p == "..." {
			return true
		}
	}
	return false
}

func firstStructName(in Input, emitted map[string]string) string {
	order := structureOrder(in.Structures)
	if len(order) == 0 {
		return ""
	}
	return emitted[order[0]]
}

// usageExample synthesizes a short illustration referencing real names
// from the artifact. A documentation aid, not a correctness gate.
func (g *Generator) usageExample(moduleName, structName, funcName string) string {
	var b strings.Builder
	b.WriteString("Example:\n")
	fmt.Fprintf(&b, "    import %s as lib\n", moduleName)
	if funcName != "" {
		fmt.Fprintf(&b, "    result = lib.%s()\n", funcName)
	}
	if structName != "" {
		fmt.Fprintf(&b, "    value = lib.%s()\n", structName)
	}
	return b.String()
}

func (g *Generator) warnCollision(raw, resolved string) {
	g.logger.Warn().
		Str("name", raw).
		Str("resolved", resolved).
		Err(errs.ErrNameCollision).
		Msg("Sanitized name collision resolved by suffixing")
}

func pyStringTuple(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	if len(quoted) == 1 {
		return quoted[0] + ","
	}
	return strings.Join(quoted, ", ")
}
