// Package config provides configuration loading for dwarfbind.
package config

import (
	"fmt"
)

// SchemaVersion is the current config schema version.
const SchemaVersion = "1"

// ScoreWeights are the quality-score weights applied when the same type
// name is observed in more than one compilation unit. Higher wins; ties
// keep the earliest-seen candidate. The defaults rank definitions by how
// concretely the terminal representation is known.
type ScoreWeights struct {
	// Opaque scores typedefs that resolve to nothing concrete.
	Opaque int `yaml:"opaque"`
	// Pointer scores typedefs known only to be pointer-shaped.
	Pointer int `yaml:"pointer"`
	// Primitive scores typedefs resolved to a sized primitive.
	Primitive int `yaml:"primitive"`
	// Struct scores typedefs resolved to a structure with a known layout.
	Struct int `yaml:"struct"`
	// FunctionPointer scores function-pointer typedefs, whether
	// debug-derived or recovered from header text.
	FunctionPointer int `yaml:"function_pointer"`
	// SizeKnown is added when the terminal byte size is statically known.
	SizeKnown int `yaml:"size_known"`
}

// Config is the dwarfbind configuration.
type Config struct {
	Version string `yaml:"version"`

	// DebugRoots are the roots searched for split debug files, both for
	// debug-link siblings and for .build-id/<xx>/<rest>.debug paths.
	DebugRoots []string `yaml:"debug_roots"`

	// IncludePaths are extra header include directories, appended after
	// any -I flags.
	IncludePaths []string `yaml:"include_paths"`

	// Scoring holds the reconciliation weights.
	Scoring ScoreWeights `yaml:"scoring"`

	// MaxAliasDepth caps typedef alias-chain resolution. Chains deeper
	// than this resolve to the opaque fallback.
	MaxAliasDepth int `yaml:"max_alias_depth"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:    SchemaVersion,
		DebugRoots: []string{"/usr/lib/debug"},
		Scoring: ScoreWeights{
			Opaque:          0,
			Pointer:         2,
			Primitive:       3,
			Struct:          5,
			FunctionPointer: 4,
			SizeKnown:       1,
		},
		MaxAliasDepth: 32,
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.MaxAliasDepth < 1 {
		return fmt.Errorf("max_alias_depth must be at least 1, got %d", c.MaxAliasDepth)
	}
	w := c.Scoring
	if w.Struct < w.Primitive || w.Primitive < w.Pointer || w.Pointer < w.Opaque {
		return fmt.Errorf("scoring weights must be monotonic: opaque <= pointer <= primitive <= struct (got %d/%d/%d/%d)",
			w.Opaque, w.Pointer, w.Primitive, w.Struct)
	}
	if w.SizeKnown < 0 {
		return fmt.Errorf("size_known weight must be non-negative, got %d", w.SizeKnown)
	}
	return nil
}
