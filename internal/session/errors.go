package session

import "errors"

var (
	// ErrInvalidState is returned when an operation is attempted in a
	// lifecycle state that forbids it.
	ErrInvalidState = errors.New("already connected or no connection available")

	// ErrInvalidPhone is returned when a phone number fails
	// normalization or validation.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrStopped is returned when the manager's loop has shut down.
	ErrStopped = errors.New("session manager stopped")
)
