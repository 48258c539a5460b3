// Package rubric holds the hierarchical grading rubric: questions, optional
// sub-questions and ordered steps with machine-checkable assertions.
package rubric

import (
	"strings"

	"github.com/okian/grader/internal/domain/types"
)

// Engines a Check can name.
const (
	EngineSympy = "sympy"
	EngineScipy = "scipy"
)

// Rubric is the grading contract for one exam. Declared totals are not
// trusted; reconciliation derives totals bottom-up.
type Rubric struct {
	ExamTitle   string       `json:"exam_title,omitempty" yaml:"exam_title,omitempty"`
	TotalPoints types.Number `json:"total_points" yaml:"total_points"`
	Questions   []Question   `json:"questions" yaml:"questions"`
}

// Question is a top-level question. When SubQuestions is empty the question
// carries its steps in Rubric.
type Question struct {
	ID           types.ID      `json:"id" yaml:"id"`
	Points       types.Number  `json:"points" yaml:"points"`
	Score        types.Number  `json:"score,omitempty" yaml:"score,omitempty"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	SubQuestions []SubQuestion `json:"sub_questions,omitempty" yaml:"sub_questions,omitempty"`
	Rubric       []Step        `json:"rubric,omitempty" yaml:"rubric,omitempty"`
}

// SubQuestion is a numbered part of a question.
type SubQuestion struct {
	ID          types.ID     `json:"id" yaml:"id"`
	Points      types.Number `json:"points" yaml:"points"`
	Score       types.Number `json:"score,omitempty" yaml:"score,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Rubric      []Step       `json:"rubric,omitempty" yaml:"rubric,omitempty"`
}

// Step is one gradable criterion.
type Step struct {
	RuleID      string       `json:"rule_id,omitempty" yaml:"rule_id,omitempty"`
	Title       string       `json:"title,omitempty" yaml:"title,omitempty"`
	Points      types.Number `json:"points" yaml:"points"`
	Criterion   string       `json:"criterion" yaml:"criterion"`
	RequireWork bool         `json:"require_work,omitempty" yaml:"require_work,omitempty"`
	Check       *Check       `json:"check,omitempty" yaml:"check,omitempty"`
}

// Check is a machine-verifiable assertion attached to a step.
type Check struct {
	Engine   string     `json:"engine" yaml:"engine"`
	Type     string     `json:"type" yaml:"type"`
	Var      string     `json:"var,omitempty" yaml:"var,omitempty"`
	Expr     types.Text `json:"expr,omitempty" yaml:"expr,omitempty"`
	Expected types.Text `json:"expected" yaml:"expected"`
	Policy   *Policy    `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// Policy describes how a failed check should cost the step. Verification
// failure currently always zeroes the step; the policy is carried for
// reporting.
type Policy struct {
	AllOrNothing     bool         `json:"all_or_nothing" yaml:"all_or_nothing"`
	PartialCreditMax types.Number `json:"partial_credit_max" yaml:"partial_credit_max"`
}

// Max returns the declared points, falling back to score.
func (q Question) Max() float64 {
	if q.Points != 0 {
		return q.Points.Float()
	}
	return q.Score.Float()
}

// Max returns the declared points, falling back to score.
func (s SubQuestion) Max() float64 {
	if s.Points != 0 {
		return s.Points.Float()
	}
	return s.Score.Float()
}

// IsSympy reports whether the check asks for symbolic verification.
func (c *Check) IsSympy() bool {
	return c != nil && strings.EqualFold(strings.TrimSpace(c.Engine), EngineSympy)
}
