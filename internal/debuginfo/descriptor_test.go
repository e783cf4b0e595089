package debuginfo

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/assert"
)

func basic(size int64) dwarf.BasicType {
	return dwarf.BasicType{CommonType: dwarf.CommonType{ByteSize: size}}
}

func TestDescribeType_Primitives(t *testing.T) {
	tests := []struct {
		name string
		typ  dwarf.Type
		want string
	}{
		{"int32", &dwarf.IntType{BasicType: basic(4)}, "c_int32"},
		{"int64", &dwarf.IntType{BasicType: basic(8)}, "c_int64"},
		{"uint16", &dwarf.UintType{BasicType: basic(2)}, "c_uint16"},
		{"uint8", &dwarf.UintType{BasicType: basic(1)}, "c_uint8"},
		{"char", &dwarf.CharType{BasicType: basic(1)}, "c_char"},
		{"uchar", &dwarf.UcharType{BasicType: basic(1)}, "c_ubyte"},
		{"bool", &dwarf.BoolType{BasicType: basic(1)}, "c_bool"},
		{"float", &dwarf.FloatType{BasicType: basic(4)}, "c_float"},
		{"double", &dwarf.FloatType{BasicType: basic(8)}, "c_double"},
		{"void", new(dwarf.VoidType), "c_void_p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeType(tt.typ, 32)
			assert.Equal(t, tt.want, got.expr)
		})
	}
}

func TestDescribeType_OddSizedIntIsOpaque(t *testing.T) {
	got := describeType(&dwarf.IntType{BasicType: basic(3)}, 32)
	assert.Equal(t, OpaqueFallback, got.expr)
	assert.Equal(t, repOpaque, got.kind)
}

func TestDescribeType_Pointers(t *testing.T) {
	charPtr := &dwarf.PtrType{Type: &dwarf.CharType{BasicType: basic(1)}}
	got := describeType(charPtr, 32)
	assert.Equal(t, "c_char_p", got.expr)
	assert.Equal(t, repPointer, got.kind)

	voidPtr := &dwarf.PtrType{Type: new(dwarf.VoidType)}
	got = describeType(voidPtr, 32)
	assert.Equal(t, "c_void_p", got.expr)
	assert.Equal(t, repPointer, got.kind)

	fnPtr := &dwarf.PtrType{Type: new(dwarf.FuncType)}
	got = describeType(fnPtr, 32)
	assert.Equal(t, "c_void_p", got.expr)
	assert.Equal(t, repFuncPointer, got.kind)
}

func TestDescribeType_StructPointerKeepsName(t *testing.T) {
	st := &dwarf.StructType{StructName: "Point", Kind: "struct"}
	st.ByteSize = 8

	got := describeType(&dwarf.PtrType{Type: st}, 32)
	assert.Equal(t, "c_void_p", got.expr)
	assert.Equal(t, repPointer, got.kind)
	assert.Equal(t, "Point", got.structName)
}

func TestDescribeType_NamedStruct(t *testing.T) {
	st := &dwarf.StructType{StructName: "Point", Kind: "struct"}
	st.ByteSize = 8

	got := describeType(st, 32)
	assert.Equal(t, "Point", got.expr)
	assert.Equal(t, repStruct, got.kind)
	assert.True(t, got.sizeKnown)
}

func TestDescribeType_AnonymousStructIsOpaque(t *testing.T) {
	got := describeType(&dwarf.StructType{Kind: "struct"}, 32)
	assert.Equal(t, OpaqueFallback, got.expr)
	assert.Equal(t, repOpaque, got.kind)
}

func TestDescribeType_Array(t *testing.T) {
	arr := &dwarf.ArrayType{
		Type:  &dwarf.CharType{BasicType: basic(1)},
		Count: 16,
	}
	got := describeType(arr, 32)
	assert.Equal(t, "(c_char * 16)", got.expr)

	open := &dwarf.ArrayType{Type: &dwarf.CharType{BasicType: basic(1)}, Count: -1}
	assert.Equal(t, OpaqueFallback, describeType(open, 32).expr)
}

func TestDescribeType_TypedefChain(t *testing.T) {
	// typedef int32 inner; typedef inner outer;
	inner := &dwarf.TypedefType{Type: &dwarf.IntType{BasicType: basic(4)}}
	outer := &dwarf.TypedefType{Type: inner}

	got := describeType(outer, 32)
	assert.Equal(t, "c_int32", got.expr)
	assert.Equal(t, repPrimitive, got.kind)
}

func TestDescribeType_SelfReferentialChainTerminates(t *testing.T) {
	// A cyclic alias graph must resolve to the opaque fallback within
	// the depth cap, never loop.
	loop := new(dwarf.TypedefType)
	loop.Type = loop

	got := describeType(loop, 32)
	assert.Equal(t, OpaqueFallback, got.expr)
	assert.Equal(t, repOpaque, got.kind)
}

func TestDescribeType_ChainAtDepthCap(t *testing.T) {
	var t32 dwarf.Type = &dwarf.IntType{BasicType: basic(4)}
	for i := 0; i < 40; i++ {
		t32 = &dwarf.TypedefType{Type: t32}
	}

	// Deeper than the cap: opaque.
	assert.Equal(t, OpaqueFallback, describeType(t32, 32).expr)
	// Within a generous cap: resolves.
	assert.Equal(t, "c_int32", describeType(t32, 64).expr)
}

func TestQualityScore_Better(t *testing.T) {
	tests := []struct {
		name   string
		a, b   QualityScore
		better bool
	}{
		{"higher base wins", QualityScore{5, 0}, QualityScore{3, 1}, true},
		{"lower base loses", QualityScore{2, 1}, QualityScore{3, 0}, false},
		{"equal base, higher size wins", QualityScore{3, 1}, QualityScore{3, 0}, true},
		{"identical is not better", QualityScore{3, 1}, QualityScore{3, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.better, tt.a.Better(tt.b))
		})
	}
}
