package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrStrategyNotFound matches every *StrategyNotFoundError.
	ErrStrategyNotFound = errors.New("auth: strategy not found")

	// ErrConflictingRedirects is returned when both a success and a failure
	// redirect are requested for the same call.
	ErrConflictingRedirects = errors.New("auth: success and failure redirects are mutually exclusive")

	ErrNilStore          = errors.New("auth: session store is nil")
	ErrNilRequest        = errors.New("auth: request is nil")
	ErrInvalidSessionKey = errors.New("auth: session key must not be empty")
)

// StrategyNotFoundError reports an Authenticate call for an unregistered name.
type StrategyNotFoundError struct {
	Name string
}

func (e *StrategyNotFoundError) Error() string {
	return fmt.Sprintf("auth: strategy %q not found", e.Name)
}

// Is makes errors.Is(err, ErrStrategyNotFound) true.
func (e *StrategyNotFoundError) Is(target error) bool {
	return target == ErrStrategyNotFound
}

// AuthorizationError is the failure reason carried by a Failed outcome.
// Message is strategy-defined and safe to show to the client.
type AuthorizationError struct {
	Message string
	Cause   error
}

// NewAuthorizationError creates an AuthorizationError.
func NewAuthorizationError(message string, cause error) *AuthorizationError {
	return &AuthorizationError{Message: message, Cause: cause}
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

func (e *AuthorizationError) Unwrap() error {
	return e.Cause
}
