package registry

import "errors"

// Error taxonomy surfaced to callers. Integrity failures are never returned
// from mutation paths; they are diagnostic output of the validation service.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInput    = errors.New("invalid input")
)
