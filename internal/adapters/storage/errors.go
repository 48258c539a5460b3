package storage

import "errors"

var (
	// ErrNotFound indicates a missing object.
	ErrNotFound = errors.New("storage: object not found")
	// ErrConfig indicates incomplete object storage settings.
	ErrConfig = errors.New("storage: invalid config")
	// ErrEmptyPrefix indicates a listing without a prefix.
	ErrEmptyPrefix = errors.New("storage: prefix is required")
)
