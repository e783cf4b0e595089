package pygen

import (
	"fmt"
	"strings"
)

// pythonKeywords are reserved words in the output language. A sanitized
// identifier colliding with one gets a trailing underscore.
var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true,
	"in": true, "is": true, "lambda": true, "nonlocal": true, "not": true,
	"or": true, "pass": true, "raise": true, "return": true, "try": true,
	"while": true, "with": true, "yield": true,
}

// Sanitize turns an arbitrary symbol name into a valid output
// identifier: non-identifier characters become underscores, a leading
// digit gets an underscore prefix, and reserved words get an underscore
// suffix. The same rule set names output artifacts, so users can predict
// artifact names from library names. Sanitizing a sanitized name is a
// no-op.
func Sanitize(name string) string {
	if name == "" {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(name) + 1)
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
			b.WriteByte(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	if pythonKeywords[out] {
		out += "_"
	}
	return out
}

// nameRegistry resolves post-sanitization collisions with stable
// suffixing in order of first occurrence. A colliding entry is never
// silently dropped.
type nameRegistry struct {
	used map[string]bool
}

func newNameRegistry(reserved ...string) *nameRegistry {
	r := &nameRegistry{used: make(map[string]bool)}
	for _, name := range reserved {
		r.used[name] = true
	}
	return r
}

// Claim sanitizes name and returns a unique identifier, suffixing _2,
// _3, ... on collision. The second return reports whether a suffix was
// needed.
func (r *nameRegistry) Claim(name string) (string, bool) {
	base := Sanitize(name)
	if !r.used[base] {
		r.used[base] = true
		return base, false
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !r.used[candidate] {
			r.used[candidate] = true
			return candidate, true
		}
	}
}
