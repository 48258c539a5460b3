// Package verify re-checks a transcribed mathematical expression against the
// rubric's expected answer. It parses both sides, tries an exact symbolic
// simplification of their difference and falls back to numeric probing.
package verify

import (
	"math"
	"math/rand/v2"
	"strings"
)

// DefaultProbes are the substitution points used by the numeric fallback.
var DefaultProbes = []float64{0.1, 0.5, 1.0, 10.0}

// fallbackProbes are tried only when no regular probe could be evaluated.
var fallbackProbes = []float64{-0.5, 0.25, 2.0, 3.0, -3.0, 7.0}

// DefaultTolerance is the absolute difference accepted at a probe.
const DefaultTolerance = 1e-6

// DefaultVar is the variable assumed when a check does not name one.
const DefaultVar = "x"

// Verifier decides mathematical equivalence. The zero value is not usable;
// construct with New.
type Verifier struct {
	enabled   bool
	probes    []float64
	tolerance float64
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithEnabled toggles the engine. A disabled engine accepts every pair.
func WithEnabled(enabled bool) Option {
	return func(v *Verifier) { v.enabled = enabled }
}

// WithTolerance sets the probe tolerance.
func WithTolerance(tol float64) Option {
	return func(v *Verifier) {
		if tol > 0 {
			v.tolerance = tol
		}
	}
}

// WithExtraProbes appends n reproducible pseudo-random probes in [-10, 10].
func WithExtraProbes(n int, seed uint64) Option {
	return func(v *Verifier) {
		if n <= 0 {
			return
		}
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		for i := 0; i < n; i++ {
			v.probes = append(v.probes, rng.Float64()*20-10)
		}
	}
}

// New returns an enabled Verifier with the default probes.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		enabled:   true,
		probes:    append([]float64(nil), DefaultProbes...),
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultVerifier = New()

// Equivalent reports whether expr and expected denote the same function of
// variable using the default verifier.
func Equivalent(expr, expected, variable string) bool {
	return defaultVerifier.Equivalent(expr, expected, variable)
}

// Enabled reports whether the engine is active.
func (v *Verifier) Enabled() bool { return v.enabled }

// Equivalent reports whether expr and expected denote the same function of
// variable. It never panics: unparseable input yields false, and a probe
// that cannot be evaluated is skipped. At least one probe must be
// conclusive for the pair to pass numerically.
func (v *Verifier) Equivalent(expr, expected, variable string) (ok bool) {
	if !v.enabled {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	variable = strings.TrimSpace(variable)
	if variable == "" {
		variable = DefaultVar
	}

	a, err := parse(Normalize(expr), variable)
	if err != nil {
		return false
	}
	b, err := parse(Normalize(expected), variable)
	if err != nil {
		return false
	}

	if zero, err := symbolicallyZero(a, b); err == nil && zero {
		return true
	}

	diff := binNode{op: '-', l: a, r: b}
	agreed, conclusive := v.probe(diff, variable, v.probes)
	if !agreed {
		return false
	}
	if conclusive == 0 {
		agreed, conclusive = v.probe(diff, variable, fallbackProbes)
	}
	return agreed && conclusive > 0
}

// probe evaluates diff at points. It reports false on the first point where
// diff exceeds the tolerance, and counts the points that could be evaluated.
func (v *Verifier) probe(diff node, variable string, points []float64) (bool, int) {
	conclusive := 0
	for _, p := range points {
		d, err := eval(diff, map[string]float64{variable: p})
		if err != nil {
			continue
		}
		if math.Abs(d) > v.tolerance {
			return false, conclusive
		}
		conclusive++
	}
	return true, conclusive
}
