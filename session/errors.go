package session

import "errors"

// Sentinel errors for session operations.
var (
	ErrNilSession    = errors.New("session: session is nil")
	ErrMissingSecret = errors.New("session: at least one signing secret is required")
	ErrInvalidTTL    = errors.New("session: ttl must be positive")
)
