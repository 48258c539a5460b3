package llm

import "errors"

var (
	// ErrEmptyResponse indicates the model returned no candidates.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrMissingAPIKey indicates no API key was configured.
	ErrMissingAPIKey = errors.New("llm: missing api key")
	// ErrNoScript indicates a fake client ran out of scripted replies.
	ErrNoScript = errors.New("llm: no scripted reply")
)
