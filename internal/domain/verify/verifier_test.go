package verify_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/grader/internal/domain/verify"
)

func TestNormalize(t *testing.T) {
	Convey("Given LaTeX flavoured transcriptions", t, func() {
		cases := map[string]string{
			`\left(x+1\right)^{2}`: "(x+1)**(2)",
			`\frac{1}{2}`:          "(1)(2)",
			`\sin^2(x)`:            "sin**2(x)",
			`2**x`:                 "2**x",
			`x^2`:                  "x**2",
			`\mathrm{e}^{x}`:       "(e)**(x)",
			`3×x−1÷2`:              "3*x-1/2",
			`  x  `:                "x",
			``:                     "",
		}
		for in, want := range cases {
			So(verify.Normalize(in), ShouldEqual, want)
		}
	})
}

func TestEquivalent(t *testing.T) {
	Convey("Given the default verifier", t, func() {
		v := verify.New()

		Convey("Numerically equal constants are equivalent", func() {
			So(v.Equivalent("1/2", "0.5", "x"), ShouldBeTrue)
			So(v.Equivalent("0.5", "1/2", "x"), ShouldBeTrue)
		})

		Convey("The Pythagorean identity simplifies to one", func() {
			So(v.Equivalent("sin(x)**2 + cos(x)**2", "1", "x"), ShouldBeTrue)
			So(v.Equivalent(`\sin^2(x) + \cos^2(x)`, "1", "x"), ShouldBeTrue)
		})

		Convey("A correct derivative of csc passes", func() {
			So(v.Equivalent("-csc(x)*cot(x)", "-csc(x)*cot(x)", "x"), ShouldBeTrue)
			So(v.Equivalent("-cos(x)/sin(x)^2", "-csc(x)*cot(x)", "x"), ShouldBeTrue)
		})

		Convey("A sign error in the derivative of csc fails", func() {
			So(v.Equivalent("csc(x)*cot(x)", "-csc(x)*cot(x)", "x"), ShouldBeFalse)
		})

		Convey("Implicit multiplication and powers are understood", func() {
			So(v.Equivalent("2x^2", "2*x**2", "x"), ShouldBeTrue)
			So(v.Equivalent(`\left(x+1\right)^{3}`, "x^3+3x^2+3x+1", "x"), ShouldBeTrue)
			So(v.Equivalent("x(x+1)", "x^2+x", "x"), ShouldBeTrue)
			So(v.Equivalent("sec(x)^2", "1/cos(x)^2", "x"), ShouldBeTrue)
			So(v.Equivalent("tan(x)", "sin(x)/cos(x)", "x"), ShouldBeTrue)
		})

		Convey("Exponentials and logarithms", func() {
			So(v.Equivalent("e^x", "exp(x)", "x"), ShouldBeTrue)
			So(v.Equivalent("ln(x)", "log(x)", "x"), ShouldBeTrue)
			So(v.Equivalent("1/x", "log(x)", "x"), ShouldBeFalse)
			So(v.Equivalent("sqrt(x)^2", "x", "x"), ShouldBeTrue)
		})

		Convey("A named variable other than x is honoured", func() {
			So(v.Equivalent("2t", "t+t", "t"), ShouldBeTrue)
			So(v.Equivalent("t^2", "t", "t"), ShouldBeFalse)
			So(v.Equivalent("2theta", "theta+theta", "theta"), ShouldBeTrue)
		})

		Convey("Equivalence is symmetric", func() {
			pairs := [][2]string{
				{"1/2", "0.5"},
				{"csc(x)*cot(x)", "-csc(x)*cot(x)"},
				{"x^2-1", "(x-1)(x+1)"},
				{"sin(2x)", "2sin(x)cos(x)"},
				{"x", "x+1"},
			}
			for _, p := range pairs {
				So(v.Equivalent(p[0], p[1], "x"), ShouldEqual, v.Equivalent(p[1], p[0], "x"))
			}
		})

		Convey("Unparseable input is never equivalent", func() {
			So(v.Equivalent("", "", "x"), ShouldBeFalse)
			So(v.Equivalent("x=2", "2", "x"), ShouldBeFalse)
			So(v.Equivalent("((x", "x", "x"), ShouldBeFalse)
			So(v.Equivalent("x", "sin(", "x"), ShouldBeFalse)
			So(v.Equivalent("@#", "1", "x"), ShouldBeFalse)
		})

		Convey("Malformed or degenerate input never panics", func() {
			inputs := []string{"", "**", "1/0", "log(-1)", "sqrt(-4)", "((((", ")", "x^^2", "sin()", "log(x,1)", "0^-1", "x**x**x**x", "(x+1)^100", "é", "\x00"}
			for _, a := range inputs {
				for _, b := range inputs {
					So(func() { v.Equivalent(a, b, "x") }, ShouldNotPanic)
				}
			}
		})

		Convey("Probes that cannot be evaluated are inconclusive", func() {
			So(v.Equivalent("a*x", "x*a", "x"), ShouldBeTrue)
			// Undefined at 0.1 and 0.5 only; the remaining probes decide.
			So(v.Equivalent("sqrt(x-0.7)^2", "x-0.7", "x"), ShouldBeTrue)
			So(v.Equivalent("sqrt(x-0.7)^2", "x", "x"), ShouldBeFalse)
		})

		Convey("A pair no probe can evaluate is not equivalent", func() {
			// a and b are unbound, so no probe can be evaluated.
			So(v.Equivalent("a", "b", "x"), ShouldBeFalse)
			So(v.Equivalent("(-1)^(1/2)", "5", "x"), ShouldBeFalse)
			So(v.Equivalent("1e1000000", "x", "x"), ShouldBeFalse)
		})

		Convey("The fallback points decide when every regular probe fails", func() {
			// sqrt(-x) is undefined at every regular probe and defined at -0.5.
			So(v.Equivalent("sqrt(-x)^2", "-x", "x"), ShouldBeTrue)
			So(v.Equivalent("sqrt(-x)^2", "x", "x"), ShouldBeFalse)
			// log(x-20) is undefined at every point.
			So(v.Equivalent("log(x-20)", "log(x-20)+1", "x"), ShouldBeFalse)
		})
	})

	Convey("Given a disabled engine", t, func() {
		v := verify.New(verify.WithEnabled(false))
		So(v.Enabled(), ShouldBeFalse)
		So(v.Equivalent("1", "2", "x"), ShouldBeTrue)
	})

	Convey("Given extra seeded probes", t, func() {
		v := verify.New(verify.WithExtraProbes(8, 42), verify.WithTolerance(1e-9))
		So(v.Equivalent("x", "x+1", "x"), ShouldBeFalse)
		So(v.Equivalent("(x-1)(x+1)", "x^2-1", "x"), ShouldBeTrue)
	})

	Convey("The package level helper uses the default verifier", t, func() {
		So(verify.Equivalent("-csc(x)*cot(x)", "-csc(x)*cot(x)", ""), ShouldBeTrue)
	})
}
