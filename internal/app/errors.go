package service

import "errors"

// Sentinel errors returned by the grading service.
var (
	// ErrEmptyRubric is returned when the rubric has no resolvable question.
	ErrEmptyRubric = errors.New("rubric has no gradable questions")
	// ErrNoSubmissions is returned for a batch without submissions.
	ErrNoSubmissions = errors.New("batch has no submissions")
	// ErrDuplicateSubmission is returned when two submissions share a key.
	ErrDuplicateSubmission = errors.New("duplicate submission key")
	// ErrInvalidStrategy is returned for an unknown batch strategy.
	ErrInvalidStrategy = errors.New("unknown batch strategy")
	// ErrNoSource is returned when a batch names an object prefix but no
	// object storage is configured.
	ErrNoSource = errors.New("object storage is not configured")
	// ErrBackpressure is returned when the batch queue is full.
	ErrBackpressure = errors.New("batch queue is full")
	// ErrNotStarted is returned when the service is used before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrDecodePage is returned when a page is not a decodable image.
	ErrDecodePage = errors.New("cannot decode page image")
	// ErrNoPages is returned when a submission has no page.
	ErrNoPages = errors.New("submission has no pages")
)
