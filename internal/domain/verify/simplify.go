package verify

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// The simplifier maps an expression onto a canonical rational function: a
// ratio of polynomials with exact rational coefficients over "atoms"
// (symbols, pi, and transcendental applications such as sin(u) or exp(u)).
// Two expressions are symbolically equal when their difference reduces to a
// zero numerator. tan/csc/sec/cot are rewritten over sin and cos, and the
// relations sin(u)^2 = 1 - cos(u)^2 and sqrt(u)^2 = u are applied as
// rewrite rules, which is enough for the identities graders run into.

const (
	maxTerms   = 4096
	maxIntPow  = 32
	maxReduces = 256
)

type atom struct {
	kind string
	key  string
	arg  *ratio
	exp  *ratio
}

type factor struct {
	a   *atom
	pow int
}

type term struct {
	coef    *big.Rat
	factors []factor
}

type poly map[string]*term

type ratio struct {
	num, den poly
}

func monoKey(fs []factor) string {
	if len(fs) == 0 {
		return ""
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		if f.pow == 1 {
			parts[i] = f.a.key
		} else {
			parts[i] = fmt.Sprintf("%s^%d", f.a.key, f.pow)
		}
	}
	return strings.Join(parts, "·")
}

func constPoly(r *big.Rat) poly {
	p := poly{}
	if r.Sign() != 0 {
		p[""] = &term{coef: new(big.Rat).Set(r)}
	}
	return p
}

func intPoly(n int64) poly { return constPoly(big.NewRat(n, 1)) }

func atomPoly(a *atom) poly {
	fs := []factor{{a: a, pow: 1}}
	return poly{monoKey(fs): &term{coef: big.NewRat(1, 1), factors: fs}}
}

func (p poly) addTerm(t *term) {
	k := monoKey(t.factors)
	if cur, ok := p[k]; ok {
		cur.coef = new(big.Rat).Add(cur.coef, t.coef)
		if cur.coef.Sign() == 0 {
			delete(p, k)
		}
		return
	}
	if t.coef.Sign() == 0 {
		return
	}
	p[k] = &term{coef: new(big.Rat).Set(t.coef), factors: t.factors}
}

func (p poly) clone() poly {
	out := make(poly, len(p))
	for k, t := range p {
		out[k] = &term{coef: new(big.Rat).Set(t.coef), factors: t.factors}
	}
	return out
}

func addPoly(p, q poly) poly {
	out := p.clone()
	for _, t := range q {
		out.addTerm(t)
	}
	return out
}

func scalePoly(p poly, r *big.Rat) poly {
	out := poly{}
	if r.Sign() == 0 {
		return out
	}
	for k, t := range p {
		out[k] = &term{coef: new(big.Rat).Mul(t.coef, r), factors: t.factors}
	}
	return out
}

func negPoly(p poly) poly { return scalePoly(p, big.NewRat(-1, 1)) }

func mulFactors(a, b []factor) []factor {
	out := make([]factor, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].a.key == b[j].a.key:
			out = append(out, factor{a: a[i].a, pow: a[i].pow + b[j].pow})
			i++
			j++
		case a[i].a.key < b[j].a.key:
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func mulPoly(p, q poly) (poly, error) {
	if len(p)*len(q) > maxTerms {
		return nil, fmt.Errorf("%w: expansion too large", ErrUnsupported)
	}
	out := poly{}
	for _, a := range p {
		for _, b := range q {
			out.addTerm(&term{coef: new(big.Rat).Mul(a.coef, b.coef), factors: mulFactors(a.factors, b.factors)})
		}
	}
	return out, nil
}

func (p poly) constant() (*big.Rat, bool) {
	switch len(p) {
	case 0:
		return new(big.Rat), true
	case 1:
		if t, ok := p[""]; ok {
			return t.coef, true
		}
	}
	return nil, false
}

func (p poly) sortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p poly) key() string {
	if len(p) == 0 {
		return "0"
	}
	keys := p.sortedKeys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = p[k].coef.RatString() + "*" + k
	}
	return strings.Join(parts, " + ")
}

// leadingSign is the sign of the coefficient of the first term in key order.
func (p poly) leadingSign() int {
	keys := p.sortedKeys()
	if len(keys) == 0 {
		return 0
	}
	return p[keys[0]].coef.Sign()
}

func constRatio(r *big.Rat) *ratio { return &ratio{num: constPoly(r), den: intPoly(1)} }

func atomRatio(a *atom) *ratio { return &ratio{num: atomPoly(a), den: intPoly(1)} }

func (r *ratio) key() string { return r.num.key() + " / " + r.den.key() }

func (r *ratio) constant() (*big.Rat, bool) {
	n, ok := r.num.constant()
	if !ok {
		return nil, false
	}
	d, ok := r.den.constant()
	if !ok || d.Sign() == 0 {
		return nil, false
	}
	return new(big.Rat).Quo(n, d), true
}

func (r *ratio) isZero() bool { return len(r.num) == 0 }

func normalize(num, den poly) (*ratio, error) {
	var err error
	if num, err = reducePoly(num); err != nil {
		return nil, err
	}
	if den, err = reducePoly(den); err != nil {
		return nil, err
	}
	if len(den) == 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrDomain)
	}
	if len(num) == 0 {
		return &ratio{num: poly{}, den: intPoly(1)}, nil
	}
	if c, ok := den.constant(); ok {
		return &ratio{num: scalePoly(num, new(big.Rat).Inv(c)), den: intPoly(1)}, nil
	}
	if num.key() == den.key() {
		return constRatio(big.NewRat(1, 1)), nil
	}
	// Make the denominator's leading coefficient 1 so equal ratios share a key.
	keys := den.sortedKeys()
	lead := den[keys[0]].coef
	if lead.Cmp(big.NewRat(1, 1)) != 0 {
		inv := new(big.Rat).Inv(lead)
		num, den = scalePoly(num, inv), scalePoly(den, inv)
	}
	return &ratio{num: num, den: den}, nil
}

func addRatio(a, b *ratio) (*ratio, error) {
	if a.den.key() == b.den.key() {
		return normalize(addPoly(a.num, b.num), a.den)
	}
	l, err := mulPoly(a.num, b.den)
	if err != nil {
		return nil, err
	}
	r, err := mulPoly(b.num, a.den)
	if err != nil {
		return nil, err
	}
	d, err := mulPoly(a.den, b.den)
	if err != nil {
		return nil, err
	}
	return normalize(addPoly(l, r), d)
}

func negRatio(a *ratio) *ratio { return &ratio{num: negPoly(a.num), den: a.den} }

func subRatio(a, b *ratio) (*ratio, error) { return addRatio(a, negRatio(b)) }

func mulRatio(a, b *ratio) (*ratio, error) {
	n, err := mulPoly(a.num, b.num)
	if err != nil {
		return nil, err
	}
	d, err := mulPoly(a.den, b.den)
	if err != nil {
		return nil, err
	}
	return normalize(n, d)
}

func invRatio(a *ratio) (*ratio, error) {
	if a.isZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrDomain)
	}
	return normalize(a.den, a.num)
}

func divRatio(a, b *ratio) (*ratio, error) {
	inv, err := invRatio(b)
	if err != nil {
		return nil, err
	}
	return mulRatio(a, inv)
}

func intPowRatio(a *ratio, n int) (*ratio, error) {
	if n < 0 {
		inv, err := invRatio(a)
		if err != nil {
			return nil, err
		}
		return intPowRatio(inv, -n)
	}
	out := constRatio(big.NewRat(1, 1))
	for i := 0; i < n; i++ {
		var err error
		if out, err = mulRatio(out, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// reducePoly rewrites sin(u)^2 as 1-cos(u)^2 and sqrt(u)^2 as u until no
// term contains either pattern.
func reducePoly(p poly) (poly, error) {
	p = p.clone()
	for iter := 0; iter < maxReduces; iter++ {
		changed := false
		for _, k := range p.sortedKeys() {
			t := p[k]
			idx := -1
			for i, f := range t.factors {
				if f.pow < 2 {
					continue
				}
				if f.a.kind == "sin" || (f.a.kind == "sqrt" && isPolyRatio(f.a.arg)) {
					idx = i
					break
				}
			}
			if idx < 0 {
				continue
			}
			f := t.factors[idx]
			rest := make([]factor, 0, len(t.factors))
			rest = append(rest, t.factors[:idx]...)
			if f.pow > 2 {
				rest = append(rest, factor{a: f.a, pow: f.pow - 2})
			}
			rest = append(rest, t.factors[idx+1:]...)
			base := poly{monoKey(rest): &term{coef: t.coef, factors: rest}}

			var repl poly
			if f.a.kind == "sin" {
				cos, err := trigAtom("cos", f.a.arg)
				if err != nil {
					return nil, err
				}
				c2, err := mulPoly(atomPoly(cos), atomPoly(cos))
				if err != nil {
					return nil, err
				}
				repl = addPoly(intPoly(1), negPoly(c2))
			} else {
				repl = f.a.arg.num
			}
			expanded, err := mulPoly(base, repl)
			if err != nil {
				return nil, err
			}
			delete(p, k)
			p = addPoly(p, expanded)
			changed = true
			break
		}
		if !changed {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: rewrite did not settle", ErrUnsupported)
}

func isPolyRatio(r *ratio) bool {
	c, ok := r.den.constant()
	return ok && c.Cmp(big.NewRat(1, 1)) == 0
}

func newAtom(kind string, arg, exp *ratio) *atom {
	a := &atom{kind: kind, arg: arg, exp: exp}
	switch {
	case arg == nil:
		a.key = kind
	case exp == nil:
		a.key = kind + "(" + arg.key() + ")"
	default:
		a.key = kind + "(" + arg.key() + " ; " + exp.key() + ")"
	}
	return a
}

func symAtom(name string) *atom {
	return &atom{kind: "sym", key: "$" + name}
}

// piMultiple reports k when r is exactly k*pi for an integer k.
func piMultiple(r *ratio) (int64, bool) {
	if c, ok := r.constant(); ok && c.Sign() == 0 {
		return 0, true
	}
	if !isPolyRatio(r) || len(r.num) != 1 {
		return 0, false
	}
	t, ok := r.num["pi"]
	if !ok || !t.coef.IsInt() || !t.coef.Num().IsInt64() {
		return 0, false
	}
	return t.coef.Num().Int64(), true
}

// trigAtom returns sin(u) or cos(u) as an atom; callers fold constants first.
func trigAtom(kind string, u *ratio) (*atom, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: %s without argument", ErrUnsupported, kind)
	}
	return newAtom(kind, u, nil), nil
}

func sinRatio(u *ratio) (*ratio, error) {
	if _, ok := piMultiple(u); ok {
		return constRatio(new(big.Rat)), nil
	}
	if u.num.leadingSign() < 0 {
		inner, err := sinRatio(negRatio(u))
		if err != nil {
			return nil, err
		}
		return negRatio(inner), nil
	}
	a, err := trigAtom("sin", u)
	if err != nil {
		return nil, err
	}
	return atomRatio(a), nil
}

func cosRatio(u *ratio) (*ratio, error) {
	if k, ok := piMultiple(u); ok {
		if k%2 == 0 {
			return constRatio(big.NewRat(1, 1)), nil
		}
		return constRatio(big.NewRat(-1, 1)), nil
	}
	if u.num.leadingSign() < 0 {
		u = negRatio(u)
	}
	a, err := trigAtom("cos", u)
	if err != nil {
		return nil, err
	}
	return atomRatio(a), nil
}

func expRatio(u *ratio) (*ratio, error) {
	if c, ok := u.constant(); ok && c.Sign() == 0 {
		return constRatio(big.NewRat(1, 1)), nil
	}
	return atomRatio(newAtom("exp", u, nil)), nil
}

// singleAtom returns the atom when r is exactly one atom to the first power.
func singleAtom(r *ratio) (*atom, bool) {
	if !isPolyRatio(r) || len(r.num) != 1 {
		return nil, false
	}
	for _, t := range r.num {
		if len(t.factors) == 1 && t.factors[0].pow == 1 && t.coef.Cmp(big.NewRat(1, 1)) == 0 {
			return t.factors[0].a, true
		}
	}
	return nil, false
}

func logRatio(u *ratio) (*ratio, error) {
	if c, ok := u.constant(); ok {
		if c.Sign() <= 0 {
			return nil, fmt.Errorf("%w: log of non-positive constant", ErrDomain)
		}
		if c.Cmp(big.NewRat(1, 1)) == 0 {
			return constRatio(new(big.Rat)), nil
		}
	}
	if a, ok := singleAtom(u); ok && a.kind == "exp" {
		return a.arg, nil
	}
	return atomRatio(newAtom("log", u, nil)), nil
}

func sqrtRatio(u *ratio) (*ratio, error) {
	if c, ok := u.constant(); ok {
		if c.Sign() < 0 {
			return nil, fmt.Errorf("%w: sqrt of negative constant", ErrDomain)
		}
		if n, okN := exactSqrt(c.Num()); okN {
			if d, okD := exactSqrt(c.Denom()); okD {
				return constRatio(new(big.Rat).SetFrac(n, d)), nil
			}
		}
	}
	return atomRatio(newAtom("sqrt", u, nil)), nil
}

func exactSqrt(n *big.Int) (*big.Int, bool) {
	if n.Sign() < 0 {
		return nil, false
	}
	r := new(big.Int).Sqrt(n)
	return r, new(big.Int).Mul(r, r).Cmp(n) == 0
}

func powRatio(base, exp *ratio) (*ratio, error) {
	if c, ok := exp.constant(); ok {
		if c.IsInt() && c.Num().IsInt64() && abs64(c.Num().Int64()) <= maxIntPow {
			return intPowRatio(base, int(c.Num().Int64()))
		}
		if c.Denom().Cmp(big.NewInt(2)) == 0 && c.Num().IsInt64() && abs64(c.Num().Int64()) <= maxIntPow {
			s, err := sqrtRatio(base)
			if err != nil {
				return nil, err
			}
			return intPowRatio(s, int(c.Num().Int64()))
		}
	}
	if a, ok := singleAtom(base); ok && a.kind == "exp" {
		arg, err := mulRatio(a.arg, exp)
		if err != nil {
			return nil, err
		}
		return expRatio(arg)
	}
	return atomRatio(newAtom("pow", base, exp)), nil
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// canonical converts a parsed expression into its canonical rational form.
func canonical(n node) (*ratio, error) {
	switch t := n.(type) {
	case numNode:
		return constRatio(t.val), nil
	case symNode:
		switch t.name {
		case "e":
			return expRatio(constRatio(big.NewRat(1, 1)))
		case "pi":
			return atomRatio(&atom{kind: "pi", key: "pi"}), nil
		}
		return atomRatio(symAtom(t.name)), nil
	case negNode:
		x, err := canonical(t.x)
		if err != nil {
			return nil, err
		}
		return negRatio(x), nil
	case binNode:
		l, err := canonical(t.l)
		if err != nil {
			return nil, err
		}
		r, err := canonical(t.r)
		if err != nil {
			return nil, err
		}
		switch t.op {
		case '+':
			return addRatio(l, r)
		case '-':
			return subRatio(l, r)
		case '*':
			return mulRatio(l, r)
		case '/':
			return divRatio(l, r)
		case '^':
			return powRatio(l, r)
		}
	case callNode:
		return canonicalCall(t)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, n)
}

func canonicalCall(c callNode) (*ratio, error) {
	args := make([]*ratio, len(c.args))
	for i, a := range c.args {
		r, err := canonical(a)
		if err != nil {
			return nil, err
		}
		args[i] = r
	}
	u := args[0]
	one := constRatio(big.NewRat(1, 1))
	switch c.fn {
	case "sin":
		return sinRatio(u)
	case "cos":
		return cosRatio(u)
	case "tan", "cot", "csc", "sec":
		s, err := sinRatio(u)
		if err != nil {
			return nil, err
		}
		co, err := cosRatio(u)
		if err != nil {
			return nil, err
		}
		switch c.fn {
		case "tan":
			return divRatio(s, co)
		case "cot":
			return divRatio(co, s)
		case "csc":
			return divRatio(one, s)
		default:
			return divRatio(one, co)
		}
	case "exp":
		return expRatio(u)
	case "log", "ln":
		l, err := logRatio(u)
		if err != nil {
			return nil, err
		}
		if len(args) == 2 {
			b, err := logRatio(args[1])
			if err != nil {
				return nil, err
			}
			return divRatio(l, b)
		}
		return l, nil
	case "sqrt":
		return sqrtRatio(u)
	case "abs":
		if v, ok := u.constant(); ok {
			return constRatio(new(big.Rat).Abs(v)), nil
		}
	}
	if v, ok := u.constant(); ok && v.Sign() == 0 {
		switch c.fn {
		case "asin", "atan", "sinh", "tanh":
			return constRatio(new(big.Rat)), nil
		case "cosh":
			return one, nil
		}
	}
	return atomRatio(newAtom(c.fn, u, nil)), nil
}

// symbolicallyZero reports whether a-b simplifies to exactly zero.
func symbolicallyZero(a, b node) (bool, error) {
	ra, err := canonical(a)
	if err != nil {
		return false, err
	}
	rb, err := canonical(b)
	if err != nil {
		return false, err
	}
	d, err := subRatio(ra, rb)
	if err != nil {
		return false, err
	}
	return d.isZero(), nil
}
