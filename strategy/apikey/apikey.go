package apikey

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/authflow/auth"
	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/session"
)

// Name is the default registry key.
const Name = "apikey"

// Option configures a Strategy.
type Option func(*options)

type options struct {
	name       string
	headerName string
	logger     observe.Logger
	now        func() time.Time
}

// WithName overrides the strategy name.
// Default: "apikey"
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithHeader sets the header carrying the key.
// Default: "X-API-Key"
func WithHeader(name string) Option {
	return func(o *options) {
		if name != "" {
			o.headerName = name
		}
	}
}

// WithLogger sets the logger for rejected keys.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Strategy authenticates requests carrying a registered API key.
type Strategy struct {
	store Store
	opts  options
}

// New creates an API key strategy backed by store.
func New(store Store, opts ...Option) (*Strategy, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := options{
		name:       Name,
		headerName: "X-API-Key",
		logger:     observe.NopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Strategy{store: store, opts: o}, nil
}

// Name returns the strategy name.
func (s *Strategy) Name() string {
	return s.opts.name
}

// Authenticate looks up the request's API key. Store errors are returned as
// internal errors; unknown or expired keys produce a Failed outcome.
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request, store session.Store, opts auth.StrategyOptions) (auth.Outcome[*auth.Identity], error) {
	key := strings.TrimSpace(r.Header.Get(s.opts.headerName))
	if key == "" {
		return s.fail(ctx, r, store, opts, MsgMissingKey)
	}

	info, err := s.store.Lookup(ctx, HashKey(key))
	if err != nil {
		return auth.Outcome[*auth.Identity]{}, fmt.Errorf("apikey: lookup: %w", err)
	}
	if info == nil {
		s.opts.logger.Info(ctx, "api key rejected", observe.Field{Key: "auth.strategy", Value: s.opts.name})
		return s.fail(ctx, r, store, opts, MsgInvalidKey)
	}
	if !info.ExpiresAt.IsZero() && s.opts.now().After(info.ExpiresAt) {
		s.opts.logger.Info(ctx, "api key expired",
			observe.Field{Key: "auth.strategy", Value: s.opts.name},
			observe.Field{Key: "key_id", Value: info.ID},
		)
		return s.fail(ctx, r, store, opts, MsgKeyExpired)
	}

	id := &auth.Identity{
		Subject:   info.Subject,
		Groups:    info.Groups,
		Method:    Name,
		Claims:    make(map[string]any, len(info.Metadata)+1),
		ExpiresAt: info.ExpiresAt,
	}
	for k, v := range info.Metadata {
		id.Claims[k] = v
	}
	id.Claims["key_id"] = info.ID

	if _, redirect := opts.SuccessRedirect(); !redirect {
		return auth.Authenticated(id), nil
	}
	sess, err := auth.LoadSession(ctx, store, r)
	if err != nil {
		return auth.Outcome[*auth.Identity]{}, fmt.Errorf("apikey: load session: %w", err)
	}
	return auth.Succeed(ctx, store, sess, opts, id)
}

func (s *Strategy) fail(ctx context.Context, r *http.Request, store session.Store, opts auth.StrategyOptions, msg string) (auth.Outcome[*auth.Identity], error) {
	reason := auth.NewAuthorizationError(msg, nil)
	if _, redirect := opts.FailureRedirect(); !redirect {
		return auth.Failed[*auth.Identity](reason), nil
	}
	sess, err := auth.LoadSession(ctx, store, r)
	if err != nil {
		return auth.Outcome[*auth.Identity]{}, fmt.Errorf("apikey: load session: %w", err)
	}
	return auth.Fail[*auth.Identity](ctx, store, sess, opts, reason)
}

var _ auth.Strategy[*auth.Identity] = (*Strategy)(nil)
