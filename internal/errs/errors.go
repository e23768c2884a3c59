package errs

import "errors"

var (
	// ErrUnknownResolver indicates a queue row names a resolver that was never registered.
	ErrUnknownResolver = errors.New("unknown event resolver")
	// ErrInvalidEventTime indicates a scheduled resolver computed a non-positive fixed event time.
	ErrInvalidEventTime = errors.New("fixed event time must be positive")
	// ErrNotConfigured indicates a transport was selected but its provider credentials are missing.
	ErrNotConfigured = errors.New("message processor not configured")
)
