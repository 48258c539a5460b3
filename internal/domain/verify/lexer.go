package verify

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPow
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Multi-letter names the lexer keeps whole. Anything else made of letters is
// split into single-letter symbols, so "xy" reads as x*y.
var knownNames = []string{
	"sin", "cos", "tan", "csc", "sec", "cot",
	"asin", "acos", "atan", "sinh", "cosh", "tanh",
	"log", "ln", "exp", "sqrt", "abs",
	"pi",
	"alpha", "beta", "gamma", "delta", "theta", "lambda", "mu", "sigma", "phi", "omega", "tau", "rho",
}

type lexer struct {
	src   string
	pos   int
	names []string
}

func newLexer(src string, extra ...string) *lexer {
	names := make([]string, 0, len(knownNames)+len(extra))
	names = append(names, knownNames...)
	for _, n := range extra {
		if len(n) > 1 && isIdentString(n) {
			names = append(names, n)
		}
	}
	// Longest first so "sinh" wins over "sin".
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return &lexer{src: src, names: names}
}

func isIdentString(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '_' {
			return false
		}
	}
	return s != ""
}

func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '+':
		l.pos++
		return token{kind: tokPlus, text: "+", pos: start}, nil
	case c == '-':
		l.pos++
		return token{kind: tokMinus, text: "-", pos: start}, nil
	case c == '*':
		if strings.HasPrefix(l.src[l.pos:], "**") {
			l.pos += 2
			return token{kind: tokPow, text: "**", pos: start}, nil
		}
		l.pos++
		return token{kind: tokStar, text: "*", pos: start}, nil
	case c == '^':
		l.pos++
		return token{kind: tokPow, text: "**", pos: start}, nil
	case c == '/':
		l.pos++
		return token{kind: tokSlash, text: "/", pos: start}, nil
	case c == '(' || c == '[':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')' || c == ']':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.number(), nil
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if r == 'π' {
		l.pos += size
		return token{kind: tokIdent, text: "pi", pos: start}, nil
	}
	if unicode.IsLetter(r) {
		return l.ident(), nil
	}
	return token{}, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, r, start)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *lexer) number() token {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	// An exponent only when digits follow, so "2e" stays 2*e.
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		j := l.pos + 1
		if j < len(l.src) && (l.src[j] == '+' || l.src[j] == '-') {
			j++
		}
		if j < len(l.src) && isDigit(l.src[j]) {
			for j < len(l.src) && isDigit(l.src[j]) {
				j++
			}
			l.pos = j
		}
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}
}

func (l *lexer) ident() token {
	start := l.pos
	rest := l.src[l.pos:]
	for _, name := range l.names {
		if strings.HasPrefix(rest, name) {
			l.pos += len(name)
			return token{kind: tokIdent, text: name, pos: start}
		}
	}
	_, size := utf8.DecodeRuneInString(rest)
	l.pos += size
	// Subscripted names such as x_1 stay whole.
	if l.pos < len(l.src) && l.src[l.pos] == '_' {
		j := l.pos + 1
		for j < len(l.src) && (isDigit(l.src[j]) || isASCIILetter(l.src[j])) {
			j++
		}
		if j > l.pos+1 {
			l.pos = j
		}
	}
	return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}
}

func isASCIILetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
