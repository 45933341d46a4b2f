package config

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSecret      = errors.New("config: session.secrets requires at least one non-empty secret")
	ErrInvalidStore       = errors.New("config: session.store must be cookie or memory")
	ErrInvalidSameSite    = errors.New("config: session.cookie.same_site must be lax, strict or none")
	ErrInvalidBlockKey    = errors.New("config: session block keys must be 16, 24 or 32 bytes")
	ErrInvalidTTL         = errors.New("config: session.ttl must not be negative")
	ErrMissingName        = errors.New("config: strategy name is required")
	ErrMissingType        = errors.New("config: strategy type is required")
	ErrDuplicateName      = errors.New("config: duplicate strategy name")
	ErrUnknownType        = errors.New("config: unknown strategy type")
	ErrInvalidFactory     = errors.New("config: invalid factory registration")
	ErrDuplicateFactory   = errors.New("config: factory already registered")
	ErrInvalidSettings    = errors.New("config: invalid strategy settings")
	ErrUnknownProvider    = errors.New("config: secret provider is not registered")
	ErrEmptySecret        = errors.New("config: secret provider returned an empty value")
	ErrMissingEnvironment = errors.New("config: missing required environment variables")
)

// StrategyError reports a failure building one configured strategy.
type StrategyError struct {
	Name string
	Type string
	Err  error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("config: strategy %q (%s): %v", e.Name, e.Type, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}
