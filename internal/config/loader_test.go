package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_SaveAndLoad(t *testing.T) {
	tmpHome := t.TempDir()
	loader := &Loader{baseDir: tmpHome}

	cfg := Default()
	cfg.DebugRoots = []string{"/opt/debug", "/usr/lib/debug"}
	cfg.IncludePaths = []string{"/usr/include/freerdp3"}
	cfg.Scoring.Struct = 9

	require.NoError(t, loader.Save(cfg))
	assert.FileExists(t, loader.Path())

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.DebugRoots, loaded.DebugRoots)
	assert.Equal(t, cfg.IncludePaths, loaded.IncludePaths)
	assert.Equal(t, 9, loaded.Scoring.Struct)
}

func TestLoader_Load_NotExists(t *testing.T) {
	loader := &Loader{baseDir: t.TempDir()}

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_LoadFile_PartialKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug_roots:\n  - /srv/debug\n"), 0o644))

	loader := &Loader{baseDir: dir}
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/debug"}, cfg.DebugRoots)
	// Untouched fields keep defaults.
	assert.Equal(t, Default().Scoring, cfg.Scoring)
	assert.Equal(t, Default().MaxAliasDepth, cfg.MaxAliasDepth)
}

func TestLoader_LoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  struct: -1\n"), 0o644))

	loader := &Loader{baseDir: dir}
	_, err := loader.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monotonic")
}

func TestLoader_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DWARFBIND_CONFIG", dir)

	loader := NewLoader()
	assert.Equal(t, filepath.Join(dir, DefaultDir, ConfigFile), loader.Path())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"zero alias depth", func(c *Config) { c.MaxAliasDepth = 0 }, true},
		{"non-monotonic weights", func(c *Config) { c.Scoring.Pointer = 10 }, true},
		{"negative size weight", func(c *Config) { c.Scoring.SizeKnown = -1 }, true},
		{"equal weights allowed", func(c *Config) {
			c.Scoring = ScoreWeights{Opaque: 1, Pointer: 1, Primitive: 1, Struct: 1, FunctionPointer: 1, SizeKnown: 0}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
