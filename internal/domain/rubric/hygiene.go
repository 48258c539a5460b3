package rubric

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/okian/grader/internal/domain/types"
)

var (
	zeroWidthRe  = regexp.MustCompile("[\u200B-\u200D\uFEFF\u2061\u2062]")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanText removes zero-width and invisible operator characters, applies
// NFKC and collapses whitespace.
func CleanText(s string) string {
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = norm.NFKC.String(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// FixTotals replaces each question's points by the sum of its sub-question
// points when that sum is positive, and the exam total by the sum of
// question points when positive.
func (r *Rubric) FixTotals() {
	if r == nil {
		return
	}
	var total float64
	for i := range r.Questions {
		q := &r.Questions[i]
		if len(q.SubQuestions) == 0 {
			total += q.Points.Float()
			continue
		}
		var sub float64
		for _, sq := range q.SubQuestions {
			sub += sq.Points.Float()
		}
		if sub > 0 {
			q.Points = types.Number(sub)
			total += sub
		} else {
			total += q.Points.Float()
		}
	}
	if total > 0 {
		r.TotalPoints = types.Number(total)
	}
}

type derivative struct {
	fn, expr, expected string
}

// Checked in order; csc precedes sec and cot precedes tan so the longer
// reciprocal names win.
var derivativeTable = []derivative{
	{"csc", "csc(x)", "-csc(x)*cot(x)"},
	{"sec", "sec(x)", "sec(x)*tan(x)"},
	{"cot", "cot(x)", "-csc(x)**2"},
	{"tan", "tan(x)", "sec(x)**2"},
	{"sin", "sin(x)", "cos(x)"},
	{"cos", "cos(x)", "-sin(x)"},
	{"log", "log(x)", "1/x"},
	{"ln", "log(x)", "1/x"},
	{"exp", "exp(x)", "exp(x)"},
}

var lhopitalMarkers = []string{"羅必達", "l'hôpital", "lhopital"}

const differentiateMarker = "微分"

// SupportsChecks reports whether subject is one for which derivative checks
// are inferred.
func SupportsChecks(subject string) bool {
	s := strings.ToLower(subject)
	for _, k := range []string{"math", "stat", "linear algebra", "calculus"} {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// InferChecks cleans step text and attaches derivative checks to steps that
// mention L'Hôpital's rule or differentiation of a standard function. Steps
// that already carry a check are left alone. It returns the number of checks
// added.
func (r *Rubric) InferChecks(subject string) int {
	if r == nil || !SupportsChecks(subject) {
		return 0
	}
	added := 0
	visit := func(steps []Step) {
		for i := range steps {
			st := &steps[i]
			st.Criterion = CleanText(st.Criterion)
			st.Title = CleanText(st.Title)
			if st.Check != nil {
				continue
			}
			if c := inferCheck(st.Criterion); c != nil {
				st.Check = c
				added++
			}
		}
	}
	for qi := range r.Questions {
		q := &r.Questions[qi]
		visit(q.Rubric)
		for si := range q.SubQuestions {
			visit(q.SubQuestions[si].Rubric)
		}
	}
	return added
}

func inferCheck(criterion string) *Check {
	lower := strings.ToLower(criterion)
	triggered := strings.Contains(criterion, differentiateMarker)
	for _, m := range lhopitalMarkers {
		if strings.Contains(lower, m) || strings.Contains(criterion, m) {
			triggered = true
		}
	}
	if !triggered {
		return nil
	}
	for _, d := range derivativeTable {
		if strings.Contains(lower, d.fn) {
			return &Check{
				Engine:   EngineSympy,
				Type:     "derivative",
				Var:      "x",
				Expr:     types.Text(d.expr),
				Expected: types.Text(d.expected),
				Policy:   &Policy{AllOrNothing: true, PartialCreditMax: 1},
			}
		}
	}
	return nil
}

// Prepare runs the ingestion hygiene used before grading: totals are
// recomputed and derivative checks inferred for mathematical subjects.
func (r *Rubric) Prepare(subject string) {
	r.FixTotals()
	r.InferChecks(subject)
}
