package rubric

import "strings"

type ruleRef struct {
	subQuestionID string
	step          Step
}

// Index maps graded breakdown items back to their rubric steps. It is
// immutable once built and safe for concurrent use.
type Index struct {
	stepsBySubQuestion map[string][]Step
	stepByRuleID       map[string]ruleRef
	normalized         map[string]string
}

// BuildIndex indexes every step of r. Missing sub-questions or step lists
// simply contribute nothing.
func BuildIndex(r *Rubric) *Index {
	idx := &Index{
		stepsBySubQuestion: map[string][]Step{},
		stepByRuleID:       map[string]ruleRef{},
		normalized:         map[string]string{},
	}
	if r == nil {
		return idx
	}
	for _, q := range r.Questions {
		if len(q.SubQuestions) == 0 && len(q.Rubric) > 0 {
			idx.add(q.ID.String(), q.Rubric)
		}
		for _, sq := range q.SubQuestions {
			idx.add(sq.ID.String(), sq.Rubric)
		}
	}
	return idx
}

func (idx *Index) add(id string, steps []Step) {
	idx.stepsBySubQuestion[id] = steps
	if n := NormalizeID(id); n != "" {
		if _, taken := idx.normalized[n]; !taken {
			idx.normalized[n] = id
		}
	}
	for _, st := range steps {
		if rid := strings.TrimSpace(st.RuleID); rid != "" {
			idx.stepByRuleID[rid] = ruleRef{subQuestionID: id, step: st}
		}
	}
}

// Resolve finds the step a breakdown item refers to: by exact rule id when
// one is echoed back, otherwise by its position within the question. A
// question id that misses exactly is retried in normalized form.
func (idx *Index) Resolve(questionID string, position int, ruleID string) (Step, bool) {
	if idx == nil {
		return Step{}, false
	}
	if rid := strings.TrimSpace(ruleID); rid != "" {
		if ref, ok := idx.stepByRuleID[rid]; ok {
			return ref.step, true
		}
	}
	steps, ok := idx.Steps(questionID)
	if !ok || position < 0 || position >= len(steps) {
		return Step{}, false
	}
	return steps[position], true
}

// Steps returns the ordered steps registered for a question or sub-question id.
func (idx *Index) Steps(id string) ([]Step, bool) {
	id = strings.TrimSpace(id)
	if steps, ok := idx.stepsBySubQuestion[id]; ok {
		return steps, true
	}
	if orig, ok := idx.normalized[NormalizeID(id)]; ok {
		return idx.stepsBySubQuestion[orig], true
	}
	return nil, false
}

// Len returns the number of indexed step lists.
func (idx *Index) Len() int { return len(idx.stepsBySubQuestion) }
