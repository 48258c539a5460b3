package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("batch not found")
	ErrExists       = errors.New("batch already exists")
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrEncode       = errors.New("batch encoding failed")
	ErrNoDSN        = errors.New("postgres dsn is empty")
)
