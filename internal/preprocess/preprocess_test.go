package preprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHeader(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testPreprocessor(includePaths ...string) *Preprocessor {
	return New(includePaths, zerolog.Nop())
}

func TestProcessHeaders_BasicMacrosAndGuards(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "foo.h", `
#ifndef FOO_H
#define FOO_H

#define MAX_FOO 16
#define FOO_NAME "foo"
#define FOO_FLAGS (1 << 4)
#define FOO_MASK (FOO_FLAGS | 0x0F)
#define FOO_FN(x) ((x) * 2)

typedef void (*Callback)(int);

#endif /* FOO_H */
`)

	p := testPreprocessor()
	table := p.ProcessHeaders([]string{header}, nil)

	assert.Equal(t, "16", table["MAX_FOO"])
	assert.Equal(t, `"foo"`, table["FOO_NAME"])
	assert.Equal(t, "16", table["FOO_FLAGS"])
	assert.Equal(t, "31", table["FOO_MASK"])

	_, hasGuard := table["FOO_H"]
	assert.False(t, hasGuard, "include-guard-shaped identifiers must be excluded")
	_, hasFn := table["FOO_FN"]
	assert.False(t, hasFn, "parameterized macros must be excluded")

	typedefs := p.FunctionPointerTypedefs([]string{header})
	assert.Equal(t, []string{"Callback"}, typedefs)
}

func TestProcessHeaders_IncludeExpansion(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, "inner.h", "#define INNER_VALUE 7\n")
	outer := writeHeader(t, dir, "outer.h", `
#include "inner.h"
#define OUTER_VALUE (INNER_VALUE + 1)
`)

	table := testPreprocessor().ProcessHeaders([]string{outer}, nil)
	assert.Equal(t, "7", table["INNER_VALUE"])
	assert.Equal(t, "8", table["OUTER_VALUE"])
}

func TestProcessHeaders_AngleIncludeUsesIncludePaths(t *testing.T) {
	incDir := t.TempDir()
	writeHeader(t, incDir, "dep.h", "#define DEP_VALUE 3\n")

	dir := t.TempDir()
	header := writeHeader(t, dir, "main.h", "#include <dep.h>\n#define MAIN_VALUE DEP_VALUE\n")

	table := testPreprocessor(incDir).ProcessHeaders([]string{header}, nil)
	assert.Equal(t, "3", table["DEP_VALUE"])
	assert.Equal(t, "3", table["MAIN_VALUE"])
}

func TestProcessHeaders_IncludeCycleTerminates(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, "a.h", "#include \"b.h\"\n#define A_VALUE 1\n")
	writeHeader(t, dir, "b.h", "#include \"a.h\"\n#define B_VALUE 2\n")

	table := testPreprocessor().ProcessHeaders([]string{filepath.Join(dir, "a.h")}, nil)
	assert.Equal(t, "1", table["A_VALUE"])
	assert.Equal(t, "2", table["B_VALUE"])
}

func TestProcessHeaders_UnreadableHeaderSkipped(t *testing.T) {
	dir := t.TempDir()
	good := writeHeader(t, dir, "good.h", "#define GOOD 1\n")
	missing := filepath.Join(dir, "missing.h")

	table := testPreprocessor().ProcessHeaders([]string{missing, good}, nil)
	assert.Equal(t, "1", table["GOOD"])
}

func TestProcessHeaders_UndefRemoves(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "u.h", "#define GONE 1\n#undef GONE\n#define KEPT 2\n")

	table := testPreprocessor().ProcessHeaders([]string{header}, nil)
	_, has := table["GONE"]
	assert.False(t, has)
	assert.Equal(t, "2", table["KEPT"])
}

func TestProcessHeaders_ModuleConstantsSuppressAndResolve(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "m.h", "#define SHARED 5\n#define DERIVED (SHARED + BASE)\n")

	moduleConsts := map[string]string{"SHARED": "5", "BASE": "10"}
	table := testPreprocessor().ProcessHeaders([]string{header}, moduleConsts)

	_, has := table["SHARED"]
	assert.False(t, has, "constants from referenced modules must not be re-emitted")
	assert.Equal(t, "15", table["DERIVED"], "module constants must still resolve references")
}

func TestProcessHeaders_HexAndCharLiterals(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "lit.h", `
#define HEX_VAL 0xFF
#define SUFFIXED 42UL
#define CHAR_VAL 'A'
#define NEWLINE '\n'
#define UNEVAL sizeof(int)
`)

	table := testPreprocessor().ProcessHeaders([]string{header}, nil)
	assert.Equal(t, "0xFF", table["HEX_VAL"], "plain hex literals keep their spelling")
	assert.Equal(t, "42", table["SUFFIXED"])
	assert.Equal(t, "65", table["CHAR_VAL"])
	assert.Equal(t, "10", table["NEWLINE"])
	_, has := table["UNEVAL"]
	assert.False(t, has, "unevaluable expressions are dropped")
}

func TestFunctionPointerTypedefs(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "cb.h", `
typedef void (*Callback)(int);
typedef int (*Comparator)(const void *a, const void *b);
typedef unsigned long long (*TickSource)(void);
/* typedef void (*Commented)(void); */
typedef struct Point Point;
`)

	got := testPreprocessor().FunctionPointerTypedefs([]string{header})
	assert.Equal(t, []string{"Callback", "Comparator", "TickSource"}, got)
}

func TestIsGuardName(t *testing.T) {
	tests := []struct {
		name      string
		fileGuard string
		want      bool
	}{
		{"FOO_H", "FOO_H", true},
		{"__FOO_H__", "FOO_H", true},
		{"BAR_H", "FOO_H", true},
		{"BAR_H_INCLUDED", "FOO_H", true},
		{"MAX_FOO", "FOO_H", false},
		{"max_foo_h", "FOO_H", false},
		{"API_EXPORT", "FOO_H", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isGuardName(tt.name, tt.fileGuard))
		})
	}
}

func TestLoadModuleConstants(t *testing.T) {
	dir := t.TempDir()
	module := `"""Generated bindings."""
MAX_FOO = 16
NAME = "foo"
HEX = 0x10
_private = 1
def helper():
    pass
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libfoo_so_2.py"), []byte(module), 0o644))

	consts := testPreprocessor().LoadModuleConstants([]string{"libfoo_so_2"}, []string{dir})
	assert.Equal(t, "16", consts["MAX_FOO"])
	assert.Equal(t, `"foo"`, consts["NAME"])
	assert.Equal(t, "0x10", consts["HEX"])
}

func TestLoadModuleConstants_MissingModule(t *testing.T) {
	consts := testPreprocessor().LoadModuleConstants([]string{"nope"}, []string{t.TempDir()})
	assert.Empty(t, consts)
}

func TestStripComments(t *testing.T) {
	in := `#define A 1 // trailing
/* block */ #define B 2
#define C "http://not/a/comment"`
	out := stripComments(in)
	assert.Contains(t, out, "#define A 1")
	assert.NotContains(t, out, "trailing")
	assert.NotContains(t, out, "block")
	assert.Contains(t, out, `"http://not/a/comment"`)
}
