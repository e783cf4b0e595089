// Package preprocess extracts macro constants and fallback
// function-pointer typedefs from C header source text.
//
// This is a best-effort textual pass, deliberately independent of the
// debug-information pipeline: conditional compilation is not evaluated,
// parameterized macros are excluded, and anything unevaluable is dropped
// rather than guessed at.
package preprocess

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dwarfbind/dwarfbind/internal/errs"
)

// maxIncludeDepth caps #include recursion so include cycles terminate.
const maxIncludeDepth = 32

// MacroTable maps macro identifiers to Python-literal value text.
type MacroTable map[string]string

// Preprocessor runs the textual macro pass over header files.
type Preprocessor struct {
	includePaths []string
	logger       zerolog.Logger
}

// New creates a preprocessor searching the given include directories for
// #include references.
func New(includePaths []string, logger zerolog.Logger) *Preprocessor {
	return &Preprocessor{
		includePaths: includePaths,
		logger:       logger.With().Str("component", "preprocessor").Logger(),
	}
}

// rawDefine is an unevaluated object-like macro in definition order.
type rawDefine struct {
	name  string
	value string
}

// ProcessHeaders builds the macro table for the given headers, expanding
// quoted includes. moduleConstants are constants already emitted by
// previously generated binding modules; they resolve references but are
// not re-emitted. An unreadable header is reported and skipped; the
// remaining headers are still processed.
func (p *Preprocessor) ProcessHeaders(headers []string, moduleConstants map[string]string) MacroTable {
	defines := make(map[string]string)
	var order []string

	for _, header := range headers {
		visited := make(map[string]bool)
		p.scanFile(header, header, 0, visited, defines, &order)
	}

	table := make(MacroTable)
	for _, name := range order {
		raw, ok := defines[name]
		if !ok {
			continue // undef'd later
		}
		if _, known := moduleConstants[name]; known {
			p.logger.Debug().Str("macro", name).Msg("Constant already provided by a referenced module")
			continue
		}
		literal, ok := p.evaluate(raw, defines, moduleConstants, 0)
		if !ok {
			p.logger.Debug().Str("macro", name).Str("value", raw).Msg("Dropping unevaluable macro")
			continue
		}
		table[name] = literal
	}

	p.logger.Info().Int("macros", len(table)).Msg("Macro extraction complete")
	return table
}

// scanFile tokenizes one header, following quoted includes.
func (p *Preprocessor) scanFile(path, origin string, depth int, visited map[string]bool, defines map[string]string, order *[]string) {
	if depth > maxIncludeDepth {
		p.logger.Warn().Str("header", path).Msg("Include depth cap reached")
		return
	}

	abs, err := filepath.Abs(path)
	if err == nil {
		if visited[abs] {
			return
		}
		visited[abs] = true
	}

	data, err := os.ReadFile(path) // #nosec G304 - user-supplied header path
	if err != nil {
		p.logger.Warn().
			Str("header", path).
			Err(errs.Wrap(errs.ErrHeaderUnreadable, err.Error())).
			Msg("Skipping header")
		return
	}

	text := spliceContinuations(stripComments(string(data)))
	guard := guardForFile(path)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		directive := strings.TrimSpace(line[1:])

		switch {
		case strings.HasPrefix(directive, "include"):
			if included, ok := p.resolveInclude(directive, filepath.Dir(path)); ok {
				p.scanFile(included, origin, depth+1, visited, defines, order)
			}

		case strings.HasPrefix(directive, "define"):
			name, value, ok := parseDefine(directive)
			if !ok {
				continue
			}
			if isGuardName(name, guard) {
				continue
			}
			if _, seen := defines[name]; !seen {
				*order = append(*order, name)
			}
			defines[name] = value

		case strings.HasPrefix(directive, "undef"):
			name := strings.TrimSpace(strings.TrimPrefix(directive, "undef"))
			delete(defines, name)
		}
	}
}

// resolveInclude locates an #include target. Quoted includes search the
// including file's directory first, then the include paths; angle-bracket
// includes search only the include paths.
func (p *Preprocessor) resolveInclude(directive, fromDir string) (string, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(directive, "include"))
	if len(rest) < 2 {
		return "", false
	}

	var name string
	var dirs []string
	switch rest[0] {
	case '"':
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return "", false
		}
		name = rest[1 : 1+end]
		dirs = append([]string{fromDir}, p.includePaths...)
	case '<':
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return "", false
		}
		name = rest[1:end]
		dirs = p.includePaths
	default:
		return "", false
	}

	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

// parseDefine splits "#define NAME value". Function-like macros
// (identifier immediately followed by a parenthesis) are excluded.
func parseDefine(directive string) (name, value string, ok bool) {
	body := strings.TrimSpace(strings.TrimPrefix(directive, "define"))
	if body == "" {
		return "", "", false
	}

	end := 0
	for end < len(body) && isIdentChar(body[end]) {
		end++
	}
	if end == 0 {
		return "", "", false
	}
	name = body[:end]

	if end < len(body) && body[end] == '(' {
		return "", "", false // parameterized macro
	}

	return name, strings.TrimSpace(body[end:]), true
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// guardForFile derives the conventional include-guard identifier for a
// header path, e.g. "freerdp/api.h" -> "API_H".
func guardForFile(path string) string {
	base := strings.ToUpper(filepath.Base(path))
	var b strings.Builder
	for _, r := range base {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

var guardSuffixes = []string{"_H", "_H_", "_H__", "_HPP", "_H_INCLUDED", "_INCLUDED"}

// isGuardName applies the include-guard heuristic: all-uppercase names
// with a guard-shaped suffix, or the file's own derived guard pattern.
func isGuardName(name, fileGuard string) bool {
	if strings.ToUpper(name) != name {
		return false
	}
	trimmed := strings.Trim(name, "_")
	if trimmed == "" {
		return false
	}
	if trimmed == strings.Trim(fileGuard, "_") {
		return true
	}
	for _, suffix := range guardSuffixes {
		if strings.HasSuffix(trimmed, suffix) {
			return true
		}
	}
	return false
}

// stripComments removes // and /* */ comments, preserving newlines so
// line structure survives, and leaving string literals intact.
func stripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '"' || c == '\'':
			quote := c
			b.WriteByte(c)
			i++
			for i < len(text) && text[i] != quote {
				if text[i] == '\\' && i+1 < len(text) {
					b.WriteByte(text[i])
					i++
				}
				b.WriteByte(text[i])
				i++
			}
			if i < len(text) {
				b.WriteByte(quote)
				i++
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			i += 2
			for i+1 < len(text) && !(text[i] == '*' && text[i+1] == '/') {
				if text[i] == '\n' {
					b.WriteByte('\n')
				}
				i++
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// spliceContinuations joins backslash-newline continued lines.
func spliceContinuations(text string) string {
	text = strings.ReplaceAll(text, "\\\r\n", "")
	return strings.ReplaceAll(text, "\\\n", "")
}

// fnPtrTypedefRe matches `typedef <return-type> (*Name)(...)` without
// attempting full signature resolution.
var fnPtrTypedefRe = regexp.MustCompile(`typedef\s+[A-Za-z_][\w\s\*]*?\(\s*\*\s*([A-Za-z_]\w*)\s*\)\s*\(`)

// FunctionPointerTypedefs scans raw header text for function-pointer
// typedef declarations, returning the typedef names sorted. This is a
// lower-confidence source than debug information and is merged only as a
// fallback by the pipeline.
func (p *Preprocessor) FunctionPointerTypedefs(headers []string) []string {
	seen := make(map[string]bool)
	for _, header := range headers {
		data, err := os.ReadFile(header) // #nosec G304 - user-supplied header path
		if err != nil {
			p.logger.Warn().
				Str("header", header).
				Err(errs.Wrap(errs.ErrHeaderUnreadable, err.Error())).
				Msg("Skipping header during function-pointer scan")
			continue
		}
		text := stripComments(string(data))
		for _, match := range fnPtrTypedefRe.FindAllStringSubmatch(text, -1) {
			seen[match[1]] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		p.logger.Debug().Int("count", len(names)).Msg("Function-pointer typedefs found in header text")
	}
	return names
}

// LoadModuleConstants scans previously generated binding artifacts for
// top-level constant assignments. Modules are given by name (as passed to
// --modules) and located against the search directories. The result is
// consulted read-only.
func (p *Preprocessor) LoadModuleConstants(modules, searchDirs []string) map[string]string {
	constants := make(map[string]string)
	assignRe := regexp.MustCompile(`(?m)^([A-Za-z_]\w*)\s*=\s*(-?\d+|0[xX][0-9a-fA-F]+|"[^"]*")\s*$`)

	for _, module := range modules {
		filename := module
		if !strings.HasSuffix(filename, ".py") {
			filename += ".py"
		}

		var found string
		for _, dir := range searchDirs {
			candidate := filepath.Join(dir, filename)
			if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
				found = candidate
				break
			}
		}
		if found == "" {
			p.logger.Warn().Str("module", module).Msg("Referenced module not found")
			continue
		}

		data, err := os.ReadFile(found) // #nosec G304 - derived module path
		if err != nil {
			p.logger.Warn().Str("module", found).Err(err).Msg("Failed to read referenced module")
			continue
		}
		count := 0
		for _, match := range assignRe.FindAllStringSubmatch(string(data), -1) {
			constants[match[1]] = match[2]
			count++
		}
		p.logger.Debug().Str("module", found).Int("constants", count).Msg("Loaded module constants")
	}
	return constants
}
