// Package grading holds the graded-response model and the rules that turn a
// raw model reply into a verified, internally consistent result.
package grading

import "github.com/okian/grader/internal/domain/types"

// Comment markers every breakdown comment starts with.
const (
	MarkerStudentWrote = "學生寫："
	MarkerMissing      = "未見："
)

// ErrorTypeComputational tags a step zeroed by symbolic verification.
const ErrorTypeComputational = "Computational"

// StudentInfo is the identity read from the page header.
type StudentInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Response is the graded result for one submission.
type Response struct {
	StudentInfo     StudentInfo  `json:"student_info"`
	ThinkingProcess string       `json:"thinking_process,omitempty"`
	Questions       []Question   `json:"questions"`
	GeneralComment  string       `json:"general_comment"`
	TotalScore      types.Number `json:"total_score"`
	CostUSD         float64      `json:"cost_usd"`

	CostBreakdown map[string]float64 `json:"cost_breakdown,omitempty"`
}

// Cost categories.
const (
	CostIdentity = "identity"
	CostGrading  = "grading"
)

// AddCost adds v to the total and to its category.
func (r *Response) AddCost(category string, v float64) {
	r.CostUSD += v
	if r.CostBreakdown == nil {
		r.CostBreakdown = make(map[string]float64, 2)
	}
	r.CostBreakdown[category] += v
}

// Question is the graded result for one question or sub-question.
type Question struct {
	ID              types.ID     `json:"id"`
	Score           types.Number `json:"score"`
	Reasoning       string       `json:"reasoning"`
	Breakdown       []Item       `json:"breakdown"`
	MaxScore        *float64     `json:"max_score,omitempty"`
	OriginalAIScore *float64     `json:"original_ai_score,omitempty"`
}

// Item is one graded rubric step.
type Item struct {
	RuleID          string       `json:"rule_id,omitempty"`
	Rule            string       `json:"rule"`
	Score           types.Number `json:"score"`
	Comment         string       `json:"comment"`
	Evidence        string       `json:"evidence"`
	SympyExpr       string       `json:"sympy_expr,omitempty"`
	ErrorType       string       `json:"error_type,omitempty"`
	MissingWork     bool         `json:"missing_work,omitempty"`
	MaxScore        *float64     `json:"max_score,omitempty"`
	OriginalAIScore *float64     `json:"original_ai_score,omitempty"`
}

// GridResponse is the model reply for one collage grid.
type GridResponse struct {
	Results []GridResult `json:"results"`
}

// GridResult is the graded content of one grid cell.
type GridResult struct {
	Index     *int         `json:"index"`
	Score     types.Number `json:"score"`
	Reasoning string       `json:"reasoning"`
	Breakdown []Item       `json:"breakdown"`
}

// Degraded returns the placeholder result for a submission whose grading failed.
func Degraded(reason string) *Response {
	return &Response{
		Questions:      []Question{},
		GeneralComment: reason,
	}
}

// Recompute sets TotalScore to the sum of question scores.
func (r *Response) Recompute() float64 {
	var total float64
	for _, q := range r.Questions {
		total += q.Score.Float()
	}
	r.TotalScore = types.Number(total)
	return total
}

// Sum returns the sum of the breakdown item scores.
func (q *Question) Sum() float64 {
	var s float64
	for _, it := range q.Breakdown {
		s += it.Score.Float()
	}
	return s
}

func ptr(f float64) *float64 { return &f }
