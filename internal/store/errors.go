package store

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict means an optimistic status update lost its race:
	// the row's current status no longer matches the expected one.
	ErrStatusConflict = errors.New("status conflict")
)
