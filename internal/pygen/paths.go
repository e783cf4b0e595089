package pygen

import (
	"os"
	"path/filepath"
	"strings"
)

// ArtifactExt is the fixed extension of generated binding modules.
const ArtifactExt = ".py"

// ArtifactName derives the output filename for a library: the embedded
// SONAME when present, otherwise the input filename, passed through the
// identifier sanitizer, with the fixed extension appended.
func ArtifactName(libraryName, fallbackPath string) string {
	base := strings.TrimSpace(libraryName)
	if base == "" {
		base = filepath.Base(fallbackPath)
	}
	return Sanitize(base) + ArtifactExt
}

// EnsureParentDir creates parent directories for an output file path,
// but only when the path structure is unambiguous: a path containing a
// separator clearly names its parent, while a bare single component
// ("output") could equally mean a file or a directory and is left alone.
func EnsureParentDir(path string) error {
	if !strings.ContainsRune(path, os.PathSeparator) {
		return nil
	}
	parent := filepath.Dir(path)
	if parent == "" || parent == "." {
		return nil
	}
	return os.MkdirAll(parent, 0o755)
}

// NormalizeWhitespace strips trailing spaces and tabs from every line
// and guarantees exactly one newline at end of content.
func NormalizeWhitespace(content []byte) []byte {
	lines := strings.Split(string(content), "\n")
	// Drop trailing empty lines, then re-terminate with a single newline.
	for len(lines) > 0 && strings.TrimRight(lines[len(lines)-1], " \t") == "" {
		lines = lines[:len(lines)-1]
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(strings.TrimRight(line, " \t"))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
