package core

import "errors"

var (
	// ErrNotFound is returned when an operation references a layer,
	// session, or project id that does not exist. Callers treat it as a
	// soft failure; the stack is left untouched.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input (bad params, unknown
	// tool, reorder with a wrong id set). Rejected before any mutation.
	ErrValidation = errors.New("validation failed")
)
