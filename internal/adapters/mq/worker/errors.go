package worker

import "errors"

// ErrPanic wraps a panic recovered from a job or task.
var ErrPanic = errors.New("worker: panic")
