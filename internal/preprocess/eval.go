package preprocess

import (
	"strconv"
	"strings"
)

// maxMacroExpansionDepth caps identifier chasing during evaluation so
// mutually-referential defines terminate.
const maxMacroExpansionDepth = 16

// evaluate turns a raw macro body into Python literal text: plain
// integer, char and string literals pass through, and simple constant
// expressions (arithmetic, shifts, bitwise ops, parens, references to
// other macros or module constants) are folded. Anything else fails.
func (p *Preprocessor) evaluate(raw string, defines, moduleConstants map[string]string, depth int) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	// String literal: emit verbatim.
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw, true
	}

	if v, ok := p.evalInt(raw, defines, moduleConstants, depth); ok {
		// Plain literals keep their spelling (hex stays hex); folded
		// expressions are emitted in decimal.
		if _, err := parseCInt(raw); err == nil {
			return strings.TrimRight(raw, "uUlL"), true
		}
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

// evalInt evaluates an integer constant expression.
func (p *Preprocessor) evalInt(expr string, defines, moduleConstants map[string]string, depth int) (int64, bool) {
	if depth > maxMacroExpansionDepth {
		return 0, false
	}

	toks, ok := tokenize(expr)
	if !ok || len(toks) == 0 {
		return 0, false
	}

	ev := &evaluator{
		toks:    toks,
		resolve: func(name string) (int64, bool) { return p.resolveIdent(name, defines, moduleConstants, depth) },
	}
	v, ok := ev.parseExpr(0)
	if !ok || ev.pos != len(ev.toks) {
		return 0, false
	}
	return v, true
}

// resolveIdent chases a macro or module-constant reference.
func (p *Preprocessor) resolveIdent(name string, defines, moduleConstants map[string]string, depth int) (int64, bool) {
	if raw, ok := defines[name]; ok {
		return p.evalInt(raw, defines, moduleConstants, depth+1)
	}
	if literal, ok := moduleConstants[name]; ok {
		v, err := parseCInt(literal)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// parseCInt parses a C integer literal, tolerating U/L suffixes.
func parseCInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "uUlL")
	return strconv.ParseInt(s, 0, 64)
}

type token struct {
	kind  byte // 'n' number, 'i' ident, 'o' operator/paren
	text  string
	value int64
}

func tokenize(expr string) ([]token, bool) {
	var toks []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(expr) && (isIdentChar(expr[j])) {
				j++
			}
			v, err := parseCInt(expr[i:j])
			if err != nil {
				return nil, false
			}
			toks = append(toks, token{kind: 'n', value: v})
			i = j
		case isIdentChar(c):
			j := i
			for j < len(expr) && isIdentChar(expr[j]) {
				j++
			}
			toks = append(toks, token{kind: 'i', text: expr[i:j]})
			i = j
		case c == '\'':
			// Char constant: its integer value.
			v, width, ok := charValue(expr[i:])
			if !ok {
				return nil, false
			}
			toks = append(toks, token{kind: 'n', value: v})
			i += width
		case c == '<' || c == '>':
			if i+1 < len(expr) && expr[i+1] == c {
				toks = append(toks, token{kind: 'o', text: expr[i : i+2]})
				i += 2
			} else {
				return nil, false // relational operators unsupported
			}
		case strings.IndexByte("+-*/%&|^~()", c) >= 0:
			toks = append(toks, token{kind: 'o', text: string(c)})
			i++
		default:
			return nil, false
		}
	}
	return toks, true
}

// charValue decodes a simple C character constant.
func charValue(s string) (int64, int, bool) {
	if len(s) < 3 || s[0] != '\'' {
		return 0, 0, false
	}
	if s[1] == '\\' {
		if len(s) < 4 || s[3] != '\'' {
			return 0, 0, false
		}
		escapes := map[byte]int64{'n': 10, 't': 9, 'r': 13, '0': 0, '\\': 92, '\'': 39, '"': 34}
		v, ok := escapes[s[2]]
		if !ok {
			return 0, 0, false
		}
		return v, 4, true
	}
	if s[2] != '\'' {
		return 0, 0, false
	}
	return int64(s[1]), 3, true
}

// evaluator is a precedence-climbing parser over the token stream.
type evaluator struct {
	toks    []token
	pos     int
	resolve func(string) (int64, bool)
}

// Binding powers, loosest first: | ^ & shifts add mul.
var precedence = map[string]int{
	"|": 1, "^": 2, "&": 3,
	"<<": 4, ">>": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (e *evaluator) parseExpr(minPrec int) (int64, bool) {
	left, ok := e.parseUnary()
	if !ok {
		return 0, false
	}

	for e.pos < len(e.toks) {
		tok := e.toks[e.pos]
		if tok.kind != 'o' {
			return 0, false
		}
		prec, isOp := precedence[tok.text]
		if !isOp || prec < minPrec {
			break
		}
		e.pos++

		right, ok := e.parseExpr(prec + 1)
		if !ok {
			return 0, false
		}
		left, ok = apply(tok.text, left, right)
		if !ok {
			return 0, false
		}
	}
	return left, true
}

func (e *evaluator) parseUnary() (int64, bool) {
	if e.pos >= len(e.toks) {
		return 0, false
	}
	tok := e.toks[e.pos]

	if tok.kind == 'o' {
		switch tok.text {
		case "-":
			e.pos++
			v, ok := e.parseUnary()
			return -v, ok
		case "~":
			e.pos++
			v, ok := e.parseUnary()
			return ^v, ok
		case "+":
			e.pos++
			return e.parseUnary()
		case "(":
			e.pos++
			v, ok := e.parseExpr(0)
			if !ok || e.pos >= len(e.toks) || e.toks[e.pos].text != ")" {
				return 0, false
			}
			e.pos++
			return v, true
		}
		return 0, false
	}

	e.pos++
	switch tok.kind {
	case 'n':
		return tok.value, true
	case 'i':
		return e.resolve(tok.text)
	}
	return 0, false
}

func apply(op string, a, b int64) (int64, bool) {
	switch op {
	case "|":
		return a | b, true
	case "^":
		return a ^ b, true
	case "&":
		return a & b, true
	case "<<":
		if b < 0 || b > 63 {
			return 0, false
		}
		return a << uint(b), true
	case ">>":
		if b < 0 || b > 63 {
			return 0, false
		}
		return a >> uint(b), true
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case "%":
		if b == 0 {
			return 0, false
		}
		return a % b, true
	}
	return 0, false
}
