package grading

import "errors"

var (
	// ErrProfiles indicates an unusable prompt profile catalogue.
	ErrProfiles = errors.New("invalid prompt profiles")
	// ErrTransition indicates an illegal lifecycle move.
	ErrTransition = errors.New("illegal stage transition")
	// ErrEmptyReply indicates the model returned no content.
	ErrEmptyReply = errors.New("empty model reply")
	// ErrDecodeReply indicates the model reply is not the expected JSON.
	ErrDecodeReply = errors.New("cannot decode model reply")
)
