package persistence

import "errors"

// Sentinel errors for persistence operations.
var (
	// ErrSessionClosed is returned when an operation is attempted on a
	// session that has already been committed or rolled back.
	ErrSessionClosed = errors.New("persistence: session already closed")

	// ErrEmptyKey is returned when Save is called with an empty key.
	ErrEmptyKey = errors.New("persistence: key cannot be empty")

	// ErrNilItem is returned when Save is called with a nil item.
	ErrNilItem = errors.New("persistence: item cannot be nil")
)
