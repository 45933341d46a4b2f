package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/session"
)

// DefaultSessionKey is the session slot holding the principal.
const DefaultSessionKey = "user"

// Option configures an Authenticator.
type Option func(*options)

type options struct {
	sessionKey string
	logger     observe.Logger
	inst       *observe.Instrumentation
}

// WithSessionKey sets the session slot holding the principal.
// Default: "user"
func WithSessionKey(key string) Option {
	return func(o *options) { o.sessionKey = key }
}

// WithLogger sets the logger used for registry and lookup events.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInstrumentation records a span, metrics and a log entry per call.
func WithInstrumentation(inst *observe.Instrumentation) Option {
	return func(o *options) { o.inst = inst }
}

// Authenticator dispatches requests to registered strategies and reads the
// session-persisted principal.
//
// Contract:
//   - Concurrency: safe for concurrent use, including Register/Deregister
//     while requests are in flight.
//   - Errors: strategy outcomes and errors are returned unchanged.
type Authenticator[U any] struct {
	store      session.Store
	sessionKey string
	logger     observe.Logger
	inst       *observe.Instrumentation

	mu         sync.RWMutex
	strategies map[string]Strategy[U]
}

// New creates an Authenticator backed by store.
func New[U any](store session.Store, opts ...Option) (*Authenticator[U], error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := options{sessionKey: DefaultSessionKey}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionKey == "" {
		return nil, ErrInvalidSessionKey
	}
	if o.inst == nil {
		o.inst = observe.NopInstrumentation()
	}
	if o.logger == nil {
		o.logger = o.inst.Logger()
	}

	return &Authenticator[U]{
		store:      store,
		sessionKey: o.sessionKey,
		logger:     o.logger,
		inst:       o.inst,
		strategies: make(map[string]Strategy[U]),
	}, nil
}

// SessionKey returns the session slot holding the principal.
func (a *Authenticator[U]) SessionKey() string {
	return a.sessionKey
}

// Store returns the session store.
func (a *Authenticator[U]) Store() session.Store {
	return a.store
}

// Register binds s under s.Name(), replacing any previous binding.
func (a *Authenticator[U]) Register(s Strategy[U]) *Authenticator[U] {
	if s == nil {
		a.logger.Warn(context.Background(), "ignoring nil strategy")
		return a
	}
	return a.RegisterAs(s.Name(), s)
}

// RegisterAs binds s under name, replacing any previous binding.
func (a *Authenticator[U]) RegisterAs(name string, s Strategy[U]) *Authenticator[U] {
	if s == nil {
		a.logger.Warn(context.Background(), "ignoring nil strategy", observe.Field{Key: "auth.strategy", Value: name})
		return a
	}
	a.mu.Lock()
	_, replaced := a.strategies[name]
	a.strategies[name] = s
	a.mu.Unlock()

	a.logger.Debug(context.Background(), "strategy registered",
		observe.Field{Key: "auth.strategy", Value: name},
		observe.Field{Key: "replaced", Value: replaced},
	)
	return a
}

// Deregister removes name. Removing an unknown name is a no-op.
func (a *Authenticator[U]) Deregister(name string) *Authenticator[U] {
	a.mu.Lock()
	_, ok := a.strategies[name]
	delete(a.strategies, name)
	a.mu.Unlock()

	if ok {
		a.logger.Debug(context.Background(), "strategy deregistered", observe.Field{Key: "auth.strategy", Value: name})
	}
	return a
}

// Strategy returns the strategy bound to name.
func (a *Authenticator[U]) Strategy(name string) (Strategy[U], bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.strategies[name]
	return s, ok
}

// Strategies returns the registered names, sorted.
func (a *Authenticator[U]) Strategies() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.strategies))
	for name := range a.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Authenticate runs the strategy registered under name against a clone of r.
// Unknown names fail with *StrategyNotFoundError. The strategy's outcome and
// error are returned unchanged.
func (a *Authenticator[U]) Authenticate(ctx context.Context, name string, r *http.Request, policy RedirectPolicy) (Outcome[U], error) {
	if r == nil {
		return Outcome[U]{}, ErrNilRequest
	}
	strategy, ok := a.Strategy(name)
	if !ok {
		a.logger.Warn(ctx, "unknown strategy", observe.Field{Key: "auth.strategy", Value: name})
		return Outcome[U]{}, &StrategyNotFoundError{Name: name}
	}

	clone, err := cloneRequest(ctx, r)
	if err != nil {
		return Outcome[U]{}, fmt.Errorf("auth: clone request: %w", err)
	}
	opts := StrategyOptions{SessionKey: a.sessionKey, Redirect: policy}

	var out Outcome[U]
	err = a.inst.Run(ctx, observe.Attempt{Op: observe.OpAuthenticate, Strategy: name}, func(ctx context.Context) (string, error) {
		var err error
		out, err = strategy.Authenticate(ctx, clone, a.store, opts)
		return out.Kind().String(), err
	})
	return out, err
}

// IsAuthenticated reads the principal from the session without running a
// strategy:
//
//	principal  policy             outcome
//	present    RedirectOnSuccess  Redirect (principal stays in the session)
//	present    otherwise          Authenticated
//	absent     RedirectOnFailure  Redirect
//	absent     otherwise          Unauthenticated
func (a *Authenticator[U]) IsAuthenticated(ctx context.Context, r *http.Request, policy RedirectPolicy) (Outcome[U], error) {
	if r == nil {
		return Outcome[U]{}, ErrNilRequest
	}
	var out Outcome[U]
	err := a.inst.Run(ctx, observe.Attempt{Op: observe.OpIsAuthenticated}, func(ctx context.Context) (string, error) {
		sess, err := LoadSession(ctx, a.store, r)
		if err != nil {
			return "", fmt.Errorf("auth: load session: %w", err)
		}

		principal, ok := a.principal(ctx, sess)
		switch {
		case ok:
			if url, redirect := policy.OnSuccess(); redirect {
				out = RedirectTo[U](url, nil)
			} else {
				out = Authenticated(principal)
			}
		default:
			if url, redirect := policy.OnFailure(); redirect {
				out = RedirectTo[U](url, nil)
			} else {
				out = Unauthenticated[U]()
			}
		}
		return out.Kind().String(), nil
	})
	return out, err
}

// Logout destroys the session and redirects to redirectTo ("/" when empty).
func (a *Authenticator[U]) Logout(ctx context.Context, r *http.Request, redirectTo string) (Outcome[U], error) {
	if r == nil {
		return Outcome[U]{}, ErrNilRequest
	}
	if redirectTo == "" {
		redirectTo = "/"
	}
	var out Outcome[U]
	err := a.inst.Run(ctx, observe.Attempt{Op: observe.OpLogout}, func(ctx context.Context) (string, error) {
		sess, err := LoadSession(ctx, a.store, r)
		if err != nil {
			return "", fmt.Errorf("auth: load session: %w", err)
		}
		header, err := a.store.DestroySession(ctx, sess)
		if err != nil {
			return "", fmt.Errorf("auth: destroy session: %w", err)
		}
		out = RedirectTo[U](redirectTo, http.Header{"Set-Cookie": {header}})
		return out.Kind().String(), nil
	})
	return out, err
}

// principal extracts and decodes the value at the session key. Values that
// a store serialized (for example to JSON) are decoded back into U; a value
// that cannot be decoded counts as absent.
func (a *Authenticator[U]) principal(ctx context.Context, sess *session.Session) (U, bool) {
	var zero U
	raw, ok := sess.Get(a.sessionKey)
	if !ok || raw == nil {
		return zero, false
	}
	if p, ok := raw.(U); ok {
		return p, true
	}

	data, err := json.Marshal(raw)
	if err != nil {
		a.logger.Warn(ctx, "undecodable principal in session", observe.Field{Key: "error", Value: err})
		return zero, false
	}
	var p U
	if err := json.Unmarshal(data, &p); err != nil {
		a.logger.Warn(ctx, "undecodable principal in session", observe.Field{Key: "error", Value: err})
		return zero, false
	}
	return p, true
}
