package collage

import (
	"sort"
	"sync"

	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/rubric"
	"github.com/okian/grader/internal/domain/types"
)

// Accumulator collects the per-label questions of one submission. Grids of
// different labels scatter into the same accumulator concurrently.
type Accumulator struct {
	mu   sync.Mutex
	resp *grading.Response
}

// NewAccumulator wraps resp, which must not be used elsewhere until Finish.
func NewAccumulator(resp *grading.Response) *Accumulator {
	if resp == nil {
		resp = &grading.Response{}
	}
	if resp.Questions == nil {
		resp.Questions = []grading.Question{}
	}
	return &Accumulator{resp: resp}
}

// Add appends a graded question and its share of the grid cost.
func (a *Accumulator) Add(q grading.Question, cost float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resp.Questions = append(a.resp.Questions, q)
	a.resp.AddCost(grading.CostGrading, cost)
}

// Finish orders questions by label position and recomputes the total.
func (a *Accumulator) Finish(labels []string) *grading.Response {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos := make(map[string]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	rank := func(id string) int {
		if p, ok := pos[id]; ok {
			return p
		}
		return len(labels)
	}
	sort.SliceStable(a.resp.Questions, func(i, j int) bool {
		return rank(a.resp.Questions[i].ID.String()) < rank(a.resp.Questions[j].ID.String())
	})
	a.resp.Recompute()
	return a.resp
}

// Board maps submission keys to accumulators. It is built before grids are
// dispatched and only read afterwards.
type Board map[string]*Accumulator

// Scatter distributes one grid reply. Results are matched to cells by their
// index, falling back to the cell's rank among populated cells when the model
// omitted indices. Each populated cell's owner receives the label question
// with its score summed from the breakdown and capped, and cost divided by
// the populated cell count. A nil reply gives every
// owner a zero question carrying failure as its reasoning.
func Scatter(m Manifest, reply *grading.GridResponse, cost float64, failure string, board Board, rec *grading.Reconciler, compiled *rubric.Compiled) int {
	populated := m.Populated()
	unit := cost / float64(max(1, len(populated)))

	byIndex := map[int]grading.GridResult{}
	var positional []grading.GridResult
	if reply != nil {
		for _, r := range reply.Results {
			if r.Index != nil {
				if _, dup := byIndex[*r.Index]; !dup {
					byIndex[*r.Index] = r
				}
				continue
			}
			positional = append(positional, r)
		}
	}

	delivered, rank := 0, -1
	for _, cell := range m.Cells {
		if cell.IsEmpty {
			continue
		}
		rank++
		acc, ok := board[cell.Submission]
		if !ok {
			continue
		}
		q := grading.Question{ID: types.ID(m.Label), Breakdown: []grading.Item{}}
		switch r, found := lookup(byIndex, positional, cell.Index, rank); {
		case reply == nil:
			q.Reasoning = failure
		case found:
			q.Score = r.Score
			q.Reasoning = r.Reasoning
			if r.Breakdown != nil {
				q.Breakdown = r.Breakdown
			}
		}
		if rec != nil && compiled != nil {
			rec.ApplyQuestion(&q, compiled.Index)
			rec.CapQuestion(&q, compiled.Rubric, grading.CapCollage)
		}
		acc.Add(q, unit)
		delivered++
	}
	return delivered
}

func lookup(byIndex map[int]grading.GridResult, positional []grading.GridResult, idx, rank int) (grading.GridResult, bool) {
	if r, ok := byIndex[idx]; ok {
		return r, true
	}
	if rank >= 0 && rank < len(positional) {
		return positional[rank], true
	}
	return grading.GridResult{}, false
}
