package shared

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an optimistic-concurrency version mismatch.
	ErrConflict = errors.New("version conflict")
)
