// Package debuginfo locates the debug data belonging to an ELF shared
// library and mines it for structure layouts, typedef alias chains and
// exported-function signatures.
package debuginfo

// DebugFile is a single resolved debug data file. Immutable once resolved.
type DebugFile struct {
	// Path is the filesystem location of the file.
	Path string
	// Valid reports whether the file parsed as ELF with DWARF sections.
	Valid bool
}

// DebugFileSet is the debug data set resolved for one library image.
type DebugFileSet struct {
	// Main is the primary debug file. Nil when no debug data was found
	// anywhere, in which case the pipeline degrades to symbols only.
	Main *DebugFile
	// Auxiliary is the optional supplementary type-info file referenced
	// by .gnu_debugaltlink (dwz), resolved the same way as Main.
	Auxiliary *DebugFile
}

// HasAuxiliary reports whether a supplementary debug file was resolved.
func (s DebugFileSet) HasAuxiliary() bool {
	return s.Auxiliary != nil
}

// Empty reports whether no debug data was found at all.
func (s DebugFileSet) Empty() bool {
	return s.Main == nil
}

// BuildIDUnknown is the display value for an absent build fingerprint.
const BuildIDUnknown = "unknown"

// ExportedFunction is a dynamic symbol of function type with a defined
// address in the library image.
type ExportedFunction struct {
	Name string
}

// Field is one member of a structure: name, ctypes descriptor, byte
// offset from the start of the aggregate, and byte size (-1 if unknown).
type Field struct {
	Name       string
	Descriptor string
	Offset     int64
	Size       int64
}

// StructureInfo describes a named aggregate (struct/union/class) with its
// ordered field list. Size is -1 when not statically known. Anonymous
// aggregates are never recorded as top-level entries.
type StructureInfo struct {
	Name string
	// Kind is the DWARF aggregate kind: "struct", "union" or "class".
	// Unions lay out every member at offset zero.
	Kind   string
	Fields []Field
	Size   int64
	Score  QualityScore
}

// IsUnion reports whether the aggregate overlays its members.
func (s StructureInfo) IsUnion() bool {
	return s.Kind == "union"
}

// TypedefInfo is a typedef resolved to its terminal representation:
// a sized primitive, a pointer, a reference to a known structure, or the
// opaque fallback.
type TypedefInfo struct {
	// Representation is a ctypes expression (c_int32, c_void_p, a
	// structure name, ...).
	Representation string
	Score          QualityScore
	// Description is a free-text provenance note, e.g.
	// "pointer to function type".
	Description string
}

// QualityScore ranks how concretely a type's terminal representation is
// known. Base carries the representation-kind rank, Size adds the
// statically-known-byte-size bonus. Compared base first, then size; ties
// keep the earliest-seen candidate.
type QualityScore struct {
	Base int
	Size int
}

// Better reports whether q strictly outranks other. Equal scores are not
// better, so the earliest-seen candidate wins ties.
func (q QualityScore) Better(other QualityScore) bool {
	if q.Base != other.Base {
		return q.Base > other.Base
	}
	return q.Size > other.Size
}

// FunctionSignature is a best-effort ctypes signature recovered from a
// DW_TAG_subprogram entry matching an exported function.
type FunctionSignature struct {
	Name string
	// Params are ctypes descriptors in declaration order.
	Params []string
	// Return is the ctypes descriptor of the return type, or "None" for
	// void.
	Return string
}

// Library is everything the resolver learned about one library image.
type Library struct {
	// Path is the input image path.
	Path string
	// Name is the embedded SONAME, or "" when absent.
	Name string
	// BuildID is the hex build fingerprint, or BuildIDUnknown.
	BuildID string
	// DebugPath is the display path of the resolved main debug file, or
	// the image path itself when debug data is embedded, or "" when none.
	DebugPath string
	// Files is the resolved debug file set.
	Files DebugFileSet
	// Exported are the defined function symbols from the dynamic table.
	Exported []ExportedFunction
}
