package form

import "errors"

var (
	ErrNilVerifier        = errors.New("form: verify function is nil")
	ErrNoUsers            = errors.New("form: at least one user is required")
	ErrUnsupportedHash    = errors.New("form: unsupported hash algorithm")
	ErrMalformedArgon2    = errors.New("form: malformed argon2 hash")
	ErrUnsupportedVariant = errors.New("form: unsupported argon2 variant")
	ErrInvalidThrottle    = errors.New("form: throttle rate and burst must be positive")
)

// Failure messages returned in Failed outcomes.
const (
	MsgMissingCredentials   = "missing credentials"
	MsgMalformedCredentials = "malformed credentials"
	MsgInvalidCredentials   = "invalid credentials"
	MsgTooManyAttempts      = "too many attempts"
)
