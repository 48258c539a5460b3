package verify

import (
	"fmt"
	"math/big"
)

// node is a parsed expression.
type node interface {
	isNode()
}

type numNode struct {
	val *big.Rat
}

type symNode struct {
	name string
}

type callNode struct {
	fn   string
	args []node
}

type binNode struct {
	op   byte // one of + - * / ^
	l, r node
}

type negNode struct {
	x node
}

func (numNode) isNode()  {}
func (symNode) isNode()  {}
func (callNode) isNode() {}
func (binNode) isNode()  {}
func (negNode) isNode()  {}

// arity of the functions the parser binds; log accepts an optional base.
var functions = map[string][2]int{
	"sin": {1, 1}, "cos": {1, 1}, "tan": {1, 1},
	"csc": {1, 1}, "sec": {1, 1}, "cot": {1, 1},
	"asin": {1, 1}, "acos": {1, 1}, "atan": {1, 1},
	"sinh": {1, 1}, "cosh": {1, 1}, "tanh": {1, 1},
	"log": {1, 2}, "ln": {1, 1}, "exp": {1, 1},
	"sqrt": {1, 1}, "abs": {1, 1},
}

type parser struct {
	toks []token
	pos  int
}

// parse reads a normalized expression. variable is kept as one symbol even
// when it is longer than a letter.
func parse(src, variable string) (node, error) {
	toks, err := newLexer(src, variable).tokens()
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	p := &parser{toks: toks}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) error {
	t := p.advance()
	if t.kind != kind {
		return fmt.Errorf("%w: expected %s at %d", ErrSyntax, what, t.pos)
	}
	return nil
}

func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokPlus:
			p.advance()
			right, err := p.term()
			if err != nil {
				return nil, err
			}
			left = binNode{op: '+', l: left, r: right}
		case tokMinus:
			p.advance()
			right, err := p.term()
			if err != nil {
				return nil, err
			}
			left = binNode{op: '-', l: left, r: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		switch t := p.peek(); t.kind {
		case tokStar, tokSlash:
			p.advance()
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			op := byte('*')
			if t.kind == tokSlash {
				op = '/'
			}
			left = binNode{op: op, l: left, r: right}
		case tokNumber, tokIdent, tokLParen:
			// implicit multiplication: 2x, x(x+1), (a)(b)
			right, err := p.power()
			if err != nil {
				return nil, err
			}
			left = binNode{op: '*', l: left, r: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) unary() (node, error) {
	switch p.peek().kind {
	case tokMinus:
		p.advance()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	case tokPlus:
		p.advance()
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokPow {
		return base, nil
	}
	p.advance()
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return binNode{op: '^', l: base, r: exp}, nil
}

func (p *parser) primary() (node, error) {
	t := p.advance()
	switch t.kind {
	case tokNumber:
		r, ok := new(big.Rat).SetString(t.text)
		if !ok {
			return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, t.text)
		}
		return numNode{val: r}, nil
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		if _, ok := functions[t.text]; ok {
			return p.application(t)
		}
		return symNode{name: t.text}, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
}

// application parses f(args), f**n(args) and the paren-less f x.
func (p *parser) application(fn token) (node, error) {
	var exponent node
	if p.peek().kind == tokPow {
		p.advance()
		e, err := p.primary()
		if err != nil {
			return nil, err
		}
		exponent = e
	}

	var args []node
	if p.peek().kind == tokLParen {
		p.advance()
		for {
			a, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().kind == tokComma {
				p.advance()
				continue
			}
			break
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
	} else {
		a, err := p.power()
		if err != nil {
			return nil, fmt.Errorf("%w: %s needs an argument", ErrSyntax, fn.text)
		}
		args = []node{a}
	}

	ar := functions[fn.text]
	if len(args) < ar[0] || len(args) > ar[1] {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrSyntax, fn.text, ar[0], len(args))
	}
	var out node = callNode{fn: fn.text, args: args}
	if exponent != nil {
		out = binNode{op: '^', l: out, r: exponent}
	}
	return out, nil
}
