package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultDir is the per-user configuration directory under $HOME.
const DefaultDir = ".dwarfbind"

// ConfigFile is the config filename inside DefaultDir.
const ConfigFile = "config.yaml"

// Loader handles loading configuration files.
type Loader struct {
	baseDir string
}

// NewLoader creates a config loader. The base directory is resolved in
// this order:
//  1. DWARFBIND_CONFIG environment variable.
//  2. User home directory.
//  3. /tmp/dwarfbind-fallback (containers without a home dir).
//
// The loader never fails; Load returns defaults when no file exists.
func NewLoader() *Loader {
	if baseDir := os.Getenv("DWARFBIND_CONFIG"); baseDir != "" {
		return &Loader{baseDir: baseDir}
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		return &Loader{baseDir: homeDir}
	}

	return &Loader{baseDir: "/tmp/dwarfbind-fallback"}
}

// Path returns the path to the config file.
func (l *Loader) Path() string {
	return filepath.Join(l.baseDir, DefaultDir, ConfigFile)
}

// Load reads the config file, returning defaults if it doesn't exist.
// Fields absent from the file keep their default values.
func (l *Loader) Load() (*Config, error) {
	return l.LoadFile(l.Path())
}

// LoadFile reads an explicit config file path. A missing file yields the
// defaults; an unparsable or invalid file is an error.
func (l *Loader) LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 - user-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config file, creating parent directories.
func (l *Loader) Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := l.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
