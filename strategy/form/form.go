package form

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/jonwraymond/authflow/auth"
	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/session"
)

// Name is the default registry key.
const Name = "form"

// VerifyFunc checks a username/password pair. It returns ok=false for
// rejected credentials; err is reserved for internal failures.
type VerifyFunc[U any] func(ctx context.Context, username, password string) (principal U, ok bool, err error)

// Option configures a Strategy.
type Option func(*options)

type options struct {
	name          string
	usernameField string
	passwordField string
	logger        observe.Logger
	throttle      *throttle
	throttleErr   error
}

// WithName overrides the strategy name.
// Default: "form"
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithFields sets the form/JSON field names.
// Default: "username", "password"
func WithFields(username, password string) Option {
	return func(o *options) {
		if username != "" {
			o.usernameField = username
		}
		if password != "" {
			o.passwordField = password
		}
	}
}

// WithThrottle limits attempts per username to burst, refilled at rate per
// second. A successful login refills the username's allowance. Throttled
// attempts fail without calling the verify function.
func WithThrottle(rate float64, burst int) Option {
	return func(o *options) {
		if rate <= 0 || burst <= 0 {
			o.throttle, o.throttleErr = nil, fmt.Errorf("%w: rate=%v burst=%d", ErrInvalidThrottle, rate, burst)
			return
		}
		o.throttle, o.throttleErr = newThrottle(rate, burst), nil
	}
}

// WithLogger sets the logger for rejected attempts.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Strategy authenticates a username/password pair posted in the request body.
type Strategy[U any] struct {
	opts   options
	verify VerifyFunc[U]
}

// New creates a form strategy.
func New[U any](verify VerifyFunc[U], opts ...Option) (*Strategy[U], error) {
	if verify == nil {
		return nil, ErrNilVerifier
	}
	o := options{
		name:          Name,
		usernameField: "username",
		passwordField: "password",
		logger:        observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.throttleErr != nil {
		return nil, o.throttleErr
	}
	return &Strategy[U]{opts: o, verify: verify}, nil
}

// Name returns the strategy name.
func (s *Strategy[U]) Name() string {
	return s.opts.name
}

// Authenticate reads and verifies the posted credentials.
func (s *Strategy[U]) Authenticate(ctx context.Context, r *http.Request, store session.Store, opts auth.StrategyOptions) (auth.Outcome[U], error) {
	username, password, err := s.readCredentials(r)
	if err != nil {
		return s.fail(ctx, r, store, opts, MsgMalformedCredentials, err)
	}
	if username == "" || password == "" {
		return s.fail(ctx, r, store, opts, MsgMissingCredentials, nil)
	}

	if t := s.opts.throttle; t != nil && !t.allow(username) {
		s.opts.logger.Warn(ctx, "login throttled",
			observe.Field{Key: "auth.strategy", Value: s.opts.name},
			observe.Field{Key: "username", Value: username},
		)
		return s.fail(ctx, r, store, opts, MsgTooManyAttempts, nil)
	}

	principal, ok, err := s.verify(ctx, username, password)
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("form: verify: %w", err)
	}
	if !ok {
		s.opts.logger.Info(ctx, "credentials rejected",
			observe.Field{Key: "auth.strategy", Value: s.opts.name},
			observe.Field{Key: "username", Value: username},
		)
		return s.fail(ctx, r, store, opts, MsgInvalidCredentials, nil)
	}
	if s.opts.throttle != nil {
		s.opts.throttle.reset(username)
	}

	if _, redirect := opts.SuccessRedirect(); !redirect {
		return auth.Authenticated(principal), nil
	}
	sess, err := auth.LoadSession(ctx, store, r)
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("form: load session: %w", err)
	}
	return auth.Succeed(ctx, store, sess, opts, principal)
}

func (s *Strategy[U]) fail(ctx context.Context, r *http.Request, store session.Store, opts auth.StrategyOptions, msg string, cause error) (auth.Outcome[U], error) {
	reason := auth.NewAuthorizationError(msg, cause)
	if _, redirect := opts.FailureRedirect(); !redirect {
		return auth.Failed[U](reason), nil
	}
	sess, err := auth.LoadSession(ctx, store, r)
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("form: load session: %w", err)
	}
	return auth.Fail[U](ctx, store, sess, opts, reason)
}

func (s *Strategy[U]) readCredentials(r *http.Request) (string, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return "", "", err
		}
		username, _ := payload[s.opts.usernameField].(string)
		password, _ := payload[s.opts.passwordField].(string)
		return strings.TrimSpace(username), password, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(r.PostFormValue(s.opts.usernameField)), r.PostFormValue(s.opts.passwordField), nil
}

// Ensure Strategy implements auth.Strategy
var _ auth.Strategy[string] = (*Strategy[string])(nil)
