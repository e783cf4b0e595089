package debuginfo

import (
	"debug/dwarf"
	"fmt"
)

// repKind classifies how concretely a terminal representation is known.
// It maps onto the configured score weights.
type repKind int

const (
	repOpaque repKind = iota
	repPointer
	repPrimitive
	repStruct
	repFuncPointer
)

// OpaqueFallback is the pointer-sized placeholder used when a type cannot
// be resolved any further.
const OpaqueFallback = "c_void_p"

// description of a resolved terminal type.
type typeDesc struct {
	// expr is a ctypes expression (assumes `from ctypes import *`).
	expr      string
	kind      repKind
	sizeKnown bool
	// structName is set when the terminal type references a named
	// aggregate, so callers can note it in provenance text.
	structName string
}

func opaqueDesc() typeDesc {
	return typeDesc{expr: OpaqueFallback, kind: repOpaque}
}

// describeType resolves a dwarf.Type to its terminal ctypes descriptor.
// Typedef and qualifier chains are followed with an explicit bounded
// loop; nesting (array elements) spends the same depth budget, so
// resolution terminates on any graph, including self-referential ones,
// yielding the opaque fallback at the cap.
func describeType(t dwarf.Type, depth int) typeDesc {
	t, ok := unwrapChain(t, depth)
	if !ok || t == nil {
		return opaqueDesc()
	}

	switch tt := t.(type) {
	case *dwarf.CharType:
		return typeDesc{expr: "c_char", kind: repPrimitive, sizeKnown: true}
	case *dwarf.UcharType:
		return typeDesc{expr: "c_ubyte", kind: repPrimitive, sizeKnown: true}
	case *dwarf.BoolType:
		return typeDesc{expr: "c_bool", kind: repPrimitive, sizeKnown: true}
	case *dwarf.IntType:
		return primitiveBySize(tt.ByteSize, true)
	case *dwarf.UintType:
		return primitiveBySize(tt.ByteSize, false)
	case *dwarf.FloatType:
		switch tt.ByteSize {
		case 4:
			return typeDesc{expr: "c_float", kind: repPrimitive, sizeKnown: true}
		case 8:
			return typeDesc{expr: "c_double", kind: repPrimitive, sizeKnown: true}
		case 16:
			return typeDesc{expr: "c_longdouble", kind: repPrimitive, sizeKnown: true}
		}
		return opaqueDesc()
	case *dwarf.EnumType:
		// Enums degrade to a signed integer of their storage size.
		d := primitiveBySize(tt.ByteSize, true)
		if d.kind == repOpaque {
			return typeDesc{expr: "c_int", kind: repPrimitive, sizeKnown: true}
		}
		return d
	case *dwarf.PtrType:
		return describePointer(tt, depth)
	case *dwarf.StructType:
		if tt.StructName == "" || tt.Incomplete {
			return opaqueDesc()
		}
		return typeDesc{
			expr:       tt.StructName,
			kind:       repStruct,
			sizeKnown:  tt.ByteSize >= 0,
			structName: tt.StructName,
		}
	case *dwarf.ArrayType:
		if tt.Count < 0 {
			return opaqueDesc()
		}
		elem := describeType(tt.Type, depth-1)
		if elem.kind == repOpaque || elem.kind == repFuncPointer {
			return opaqueDesc()
		}
		return typeDesc{
			expr:       fmt.Sprintf("(%s * %d)", elem.expr, tt.Count),
			kind:       repPrimitive,
			sizeKnown:  elem.sizeKnown,
			structName: elem.structName,
		}
	case *dwarf.FuncType:
		return typeDesc{expr: OpaqueFallback, kind: repFuncPointer, sizeKnown: true}
	case *dwarf.VoidType:
		return opaqueDesc()
	default:
		return opaqueDesc()
	}
}

// describePointer classifies the pointee without descending past the
// depth budget. Struct pointers stay c_void_p in the emitted bindings
// (a POINTER reference would force emission-order dependencies that C
// type graphs can make cyclic), but the struct name is kept for the
// provenance note.
func describePointer(p *dwarf.PtrType, depth int) typeDesc {
	pointee, ok := unwrapChain(p.Type, depth)
	if !ok {
		return typeDesc{expr: OpaqueFallback, kind: repPointer, sizeKnown: true}
	}

	switch tt := pointee.(type) {
	case *dwarf.CharType:
		return typeDesc{expr: "c_char_p", kind: repPointer, sizeKnown: true}
	case *dwarf.FuncType:
		return typeDesc{expr: OpaqueFallback, kind: repFuncPointer, sizeKnown: true}
	case *dwarf.StructType:
		return typeDesc{
			expr:       OpaqueFallback,
			kind:       repPointer,
			sizeKnown:  true,
			structName: tt.StructName,
		}
	default:
		return typeDesc{expr: OpaqueFallback, kind: repPointer, sizeKnown: true}
	}
}

// unwrapChain follows typedef and qualifier links with a bounded explicit
// loop. Returns false when the depth cap was exhausted before reaching a
// terminal type.
func unwrapChain(t dwarf.Type, depth int) (dwarf.Type, bool) {
	for i := 0; i < depth; i++ {
		switch tt := t.(type) {
		case *dwarf.TypedefType:
			t = tt.Type
		case *dwarf.QualType:
			t = tt.Type
		default:
			return t, true
		}
		if t == nil {
			// A typedef of void has no target entry.
			return nil, true
		}
	}
	return nil, false
}

// primitiveBySize maps an integer byte size onto the fixed-width ctypes
// primitives.
func primitiveBySize(size int64, signed bool) typeDesc {
	var expr string
	switch size {
	case 1:
		expr = "c_int8"
	case 2:
		expr = "c_int16"
	case 4:
		expr = "c_int32"
	case 8:
		expr = "c_int64"
	default:
		return opaqueDesc()
	}
	if !signed {
		expr = "c_u" + expr[2:]
	}
	return typeDesc{expr: expr, kind: repPrimitive, sizeKnown: true}
}
