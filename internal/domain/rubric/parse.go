package rubric

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/grader/internal/util"
)

// Parse decodes a rubric from JSON or YAML text. Code fences around the
// document and prose around a JSON object are tolerated.
func Parse(text string) (*Rubric, error) {
	body := util.StripCodeFences(text)
	if body == "" {
		return nil, ErrEmpty
	}

	var r Rubric
	if strings.HasPrefix(body, "{") {
		if err := json.Unmarshal([]byte(body), &r); err == nil {
			return &r, nil
		}
	}
	if obj, ok := util.ExtractJSONObject(body); ok {
		if err := json.Unmarshal([]byte(obj), &r); err == nil {
			return &r, nil
		}
		r = Rubric{}
	}
	if err := yaml.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(r.Questions) == 0 && r.ExamTitle == "" && r.TotalPoints == 0 {
		return nil, ErrDecode
	}
	return &r, nil
}

// JSON renders the rubric the way it is embedded into grading prompts.
func (r *Rubric) JSON() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
