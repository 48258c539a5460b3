package rubric

import "errors"

var (
	// ErrEmpty is returned when the rubric text is blank.
	ErrEmpty = errors.New("rubric: empty document")
	// ErrDecode is returned when the rubric is neither valid JSON nor YAML.
	ErrDecode = errors.New("rubric: cannot decode")
	// ErrNoQuestions is returned when the rubric declares no question.
	ErrNoQuestions = errors.New("rubric: no questions")
)
