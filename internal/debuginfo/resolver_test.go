package debuginfo

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarfbind/dwarfbind/internal/config"
	"github.com/dwarfbind/dwarfbind/internal/errs"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(config.Default(), zerolog.Nop())
}

func TestResolve_NotAnELF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libtext.so")
	require.NoError(t, os.WriteFile(path, []byte("definitely not ELF"), 0o644))

	_, err := testResolver(t).Resolve(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrLibraryNotFound))
}

func TestResolve_MissingFile(t *testing.T) {
	_, err := testResolver(t).Resolve(filepath.Join(t.TempDir(), "libnope.so"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrLibraryNotFound))
}

func TestResolve_SelfBinary(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	if _, openErr := elf.Open(exe); openErr != nil {
		t.Skipf("test binary is not ELF on this platform: %v", openErr)
	}

	lib, err := testResolver(t).Resolve(exe)
	require.NoError(t, err)
	assert.Equal(t, exe, lib.Path)
	assert.NotEmpty(t, lib.BuildID)

	if lib.Files.Empty() {
		// Stripped test binary: symbols-only degradation is the contract.
		assert.Empty(t, lib.DebugPath)
	} else {
		assert.Equal(t, exe, lib.Files.Main.Path)
		assert.Equal(t, exe, lib.DebugPath)
	}
}

func buildIDNote(name string, noteType uint32, desc []byte) []byte {
	nameBytes := append([]byte(name), 0)
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(nameBytes)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(desc)))
	binary.LittleEndian.PutUint32(buf[8:12], noteType)
	buf = append(buf, nameBytes...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	buf = append(buf, desc...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func TestParseBuildIDNote(t *testing.T) {
	id := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}

	t.Run("gnu build id", func(t *testing.T) {
		got := parseBuildIDNote(buildIDNote("GNU", 3, id))
		assert.Equal(t, "deadbeef01020304", got)
	})

	t.Run("skips foreign notes", func(t *testing.T) {
		data := append(buildIDNote("FDO", 3, []byte{1, 2, 3, 4}), buildIDNote("GNU", 3, id)...)
		got := parseBuildIDNote(data)
		assert.Equal(t, "deadbeef01020304", got)
	})

	t.Run("wrong note type", func(t *testing.T) {
		assert.Empty(t, parseBuildIDNote(buildIDNote("GNU", 1, id)))
	})

	t.Run("skips empty-desc record", func(t *testing.T) {
		data := append(buildIDNote("GNU", 1, nil), buildIDNote("GNU", 3, id)...)
		got := parseBuildIDNote(data)
		assert.Equal(t, "deadbeef01020304", got)
	})

	t.Run("empty-desc build id yields nothing", func(t *testing.T) {
		assert.Empty(t, parseBuildIDNote(buildIDNote("GNU", 3, nil)))
	})

	t.Run("truncated", func(t *testing.T) {
		assert.Empty(t, parseBuildIDNote([]byte{1, 2, 3}))
	})
}

func TestDebugLinkCandidates(t *testing.T) {
	r := NewResolver(&config.Config{DebugRoots: []string{"/usr/lib/debug"}}, zerolog.Nop())

	got := r.debugLinkCandidates("/usr/lib/libfoo.so.2", "libfoo.so.2.debug")
	assert.Equal(t, []string{
		"/usr/lib/libfoo.so.2.debug",
		"/usr/lib/.debug/libfoo.so.2.debug",
		"/usr/lib/debug/usr/lib/libfoo.so.2.debug",
	}, got)
}

func TestBuildIDCandidates(t *testing.T) {
	r := NewResolver(&config.Config{DebugRoots: []string{"/usr/lib/debug", "/opt/debug"}}, zerolog.Nop())

	got := r.buildIDCandidates("deadbeef0102")
	assert.Equal(t, []string{
		"/usr/lib/debug/.build-id/de/adbeef0102.debug",
		"/opt/debug/.build-id/de/adbeef0102.debug",
	}, got)

	assert.Nil(t, r.buildIDCandidates("de"), "short ids produce no candidates")
}

func TestAlign4(t *testing.T) {
	assert.Equal(t, uint32(0), align4(0))
	assert.Equal(t, uint32(4), align4(1))
	assert.Equal(t, uint32(4), align4(4))
	assert.Equal(t, uint32(8), align4(5))
}
