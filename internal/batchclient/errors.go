package batchclient

import "errors"

var (
	ErrNoSubmissions = errors.New("no submissions found")
	ErrHTTP          = errors.New("unexpected http status")
	ErrBatchFailed   = errors.New("batch failed")
	ErrTimeout       = errors.New("batch did not finish in time")
	ErrVerification  = errors.New("result verification failed")
)
