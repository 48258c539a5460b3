package verify

import "errors"

var (
	// ErrSyntax is returned when an expression cannot be parsed.
	ErrSyntax = errors.New("verify: syntax error")
	// ErrUnbound marks a symbol or function with no numeric value.
	ErrUnbound = errors.New("verify: unbound symbol")
	// ErrDomain marks a numeric evaluation outside the function domain.
	ErrDomain = errors.New("verify: domain error")
	// ErrUnsupported is returned by the simplifier for forms it does not canonicalize.
	ErrUnsupported = errors.New("verify: unsupported form")
)
