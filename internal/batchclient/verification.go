package batchclient

import (
	"fmt"
	"math"

	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/internal/domain/rubric"
)

// Issue is one inconsistency found in a graded result.
type Issue struct {
	Key      string `json:"key"`
	Question string `json:"question,omitempty"`
	Problem  string `json:"problem"`
}

func (i Issue) String() string {
	if i.Question == "" {
		return i.Key + ": " + i.Problem
	}
	return fmt.Sprintf("%s q%s: %s", i.Key, i.Question, i.Problem)
}

// Maxima maps question and sub-question ids to their rubric maximum.
func Maxima(r *rubric.Rubric) map[string]float64 {
	out := make(map[string]float64)
	for _, q := range r.Questions {
		out[q.ID.String()] = q.Max()
		for _, sq := range q.SubQuestions {
			out[sq.ID.String()] = sq.Max()
		}
	}
	return out
}

// Verify checks every result on the client side: the total equals the sum of
// its question scores and no question exceeds its rubric maximum. Failed
// results are skipped; their failure is already reported by the service.
func Verify(results []model.StudentResult, maxima map[string]float64) []Issue {
	var issues []Issue
	for _, r := range results {
		if r.Failed || r.Response == nil {
			continue
		}
		var sum float64
		for _, q := range r.Response.Questions {
			score := q.Score.Float()
			sum += score
			id := q.ID.String()
			if score < 0 {
				issues = append(issues, Issue{Key: r.Key, Question: id, Problem: fmt.Sprintf("negative score %g", score)})
			}
			limit, ok := maxima[id]
			if !ok && q.MaxScore != nil {
				limit, ok = *q.MaxScore, true
			}
			if ok && score > limit+scoreTolerance {
				issues = append(issues, Issue{Key: r.Key, Question: id, Problem: fmt.Sprintf("score %g exceeds maximum %g", score, limit)})
			}
		}
		if total := r.Response.TotalScore.Float(); math.Abs(total-sum) > scoreTolerance {
			issues = append(issues, Issue{Key: r.Key, Problem: fmt.Sprintf("total %g != sum of questions %g", total, sum)})
		}
	}
	return issues
}
