package grading

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/grader/internal/domain/rubric"
	"github.com/okian/grader/internal/domain/types"
	"github.com/okian/grader/internal/domain/verify"
)

const missingWorkComment = MarkerMissing + "此步驟需算式但空白，不給分。"

// Verifier decides whether a transcribed expression matches the expected one.
type Verifier interface {
	Equivalent(expr, expected, variable string) bool
}

// Observer is told about every correction the reconciler makes.
type Observer interface {
	Verified(passed bool)
	WorkMissing()
	Capped(level string)
}

// Cap levels reported to the Observer.
const (
	CapLevelStep     = "step"
	CapLevelQuestion = "question"
)

// CapStyle selects the wording of the correction note.
type CapStyle int

const (
	// CapVertical is used for whole-submission grading.
	CapVertical CapStyle = iota
	// CapCollage is used for grid grading.
	CapCollage
)

func (s CapStyle) note(max float64) string {
	if s == CapCollage {
		return fmt.Sprintf(" [System Correction: Capped at %s]", formatPoints(max))
	}
	return fmt.Sprintf("\n[System Correction] Score capped at %s.", formatPoints(max))
}

// formatPoints prints whole numbers with one decimal, e.g. 10 -> "10.0".
func formatPoints(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Reconciler converts a raw model reply into a verified response. It holds
// no per-response state and is safe for concurrent use.
type Reconciler struct {
	verifier Verifier
	observer Observer
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithVerifier sets the equivalence engine.
func WithVerifier(v Verifier) ReconcilerOption {
	return func(r *Reconciler) {
		if v != nil {
			r.verifier = v
		}
	}
}

// WithObserver sets the correction observer.
func WithObserver(o Observer) ReconcilerOption {
	return func(r *Reconciler) {
		if o != nil {
			r.observer = o
		}
	}
}

// NewReconciler returns a Reconciler backed by the default verifier.
func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{verifier: verify.New(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type nopObserver struct{}

func (nopObserver) Verified(bool) {}
func (nopObserver) WorkMissing()  {}
func (nopObserver) Capped(string) {}

// Apply verifies every breakdown item of resp against rb and replaces each
// question score by the sum of its items. resp is mutated and returned.
func (r *Reconciler) Apply(resp *Response, rb *rubric.Rubric) *Response {
	return r.ApplyIndexed(resp, rubric.BuildIndex(rb))
}

// ApplyIndexed is Apply with a prebuilt index.
func (r *Reconciler) ApplyIndexed(resp *Response, idx *rubric.Index) *Response {
	if resp == nil {
		return nil
	}
	for qi := range resp.Questions {
		r.ApplyQuestion(&resp.Questions[qi], idx)
	}
	return resp
}

// ApplyQuestion reconciles a single graded question.
func (r *Reconciler) ApplyQuestion(q *Question, idx *rubric.Index) {
	qid := q.ID.String()
	for i := range q.Breakdown {
		it := &q.Breakdown[i]
		step, ok := idx.Resolve(qid, i, it.RuleID)
		if !ok {
			continue
		}
		normalizeComment(it)
		r.applyStep(it, step)
	}
	q.Score = types.Number(q.Sum())
}

func normalizeComment(it *Item) {
	c := strings.TrimSpace(it.Comment)
	ev := strings.TrimSpace(it.Evidence)
	if c != "" && (strings.HasPrefix(c, MarkerStudentWrote) || strings.HasPrefix(c, MarkerMissing)) {
		return
	}
	if ev != "" {
		it.Comment = MarkerStudentWrote + ev + "。" + c
		return
	}
	it.Comment = MarkerMissing + c
}

func (r *Reconciler) applyStep(it *Item, step rubric.Step) {
	if step.RequireWork && strings.TrimSpace(it.Evidence) == "" {
		it.Score = 0
		it.MissingWork = true
		it.Comment = missingWorkComment
		r.observer.WorkMissing()
		return
	}

	if step.Check.IsSympy() {
		expected := step.Check.Expected.String()
		expr := strings.TrimSpace(it.SympyExpr)
		if expected != "" && expr != "" {
			variable := strings.TrimSpace(step.Check.Var)
			if variable == "" {
				variable = verify.DefaultVar
			}
			passed := r.verifier.Equivalent(expr, expected, variable)
			r.observer.Verified(passed)
			if !passed {
				it.Score = 0
				it.ErrorType = ErrorTypeComputational
				suffix := fmt.Sprintf(" [系統驗算失敗: 學生寫 '%s' vs 預期 '%s']", expr, expected)
				if !strings.Contains(it.Comment, suffix) {
					it.Comment += suffix
				}
				return
			}
		}
	}

	if max := step.Points.Float(); max > 0 {
		it.MaxScore = ptr(max)
		if it.Score.Float() > max {
			if it.OriginalAIScore == nil {
				it.OriginalAIScore = ptr(it.Score.Float())
			}
			it.Score = types.Number(max)
			r.observer.Capped(CapLevelStep)
		}
	}
}

// EnforceCaps clamps every question score to the maximum the rubric
// declares for its id and returns the number of questions capped.
func (r *Reconciler) EnforceCaps(resp *Response, rb *rubric.Rubric, style CapStyle) int {
	if resp == nil {
		return 0
	}
	capped := 0
	for qi := range resp.Questions {
		if r.CapQuestion(&resp.Questions[qi], rb, style) {
			capped++
		}
	}
	return capped
}

// CapQuestion clamps one question. The first original score is kept and the
// correction note is added once, so repeated calls are stable.
func (r *Reconciler) CapQuestion(q *Question, rb *rubric.Rubric, style CapStyle) bool {
	max, ok := rb.MaxPoints(q.ID.String())
	if !ok {
		return false
	}
	q.MaxScore = ptr(max)
	if q.Score.Float() <= max {
		return false
	}
	if q.OriginalAIScore == nil {
		q.OriginalAIScore = ptr(q.Score.Float())
	}
	q.Score = types.Number(max)
	if note := style.note(max); !strings.Contains(q.Reasoning, note) {
		q.Reasoning += note
	}
	r.observer.Capped(CapLevelQuestion)
	return true
}

// Reconcile runs Apply, enforces caps and recomputes the submission total.
func (r *Reconciler) Reconcile(resp *Response, compiled *rubric.Compiled) *Response {
	if resp == nil || compiled == nil {
		return resp
	}
	r.ApplyIndexed(resp, compiled.Index)
	r.EnforceCaps(resp, compiled.Rubric, CapVertical)
	resp.Recompute()
	return resp
}
