package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/jonwraymond/authflow/session"
)

// Strategy is one authentication method.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: Authenticate should honor cancellation/deadlines on I/O.
//   - Request: r is a private clone; its body may be consumed freely.
//   - Session: store is the only way to persist a principal across requests.
//     A strategy that redirects on success writes the principal under
//     opts.SessionKey and commits before returning the redirect (see Succeed).
//   - Errors: rejected credentials are a Failed outcome with a nil error;
//     the error return is reserved for internal failures.
type Strategy[U any] interface {
	// Name returns the default registry key.
	Name() string

	// Authenticate runs the strategy's protocol against r.
	Authenticate(ctx context.Context, r *http.Request, store session.Store, opts StrategyOptions) (Outcome[U], error)
}

// Checker is implemented by strategies and key sources that depend on a
// remote service. Check reports whether that service is usable.
type Checker interface {
	Check(ctx context.Context) error
}

// StrategyFunc adapts an ordinary function into a Strategy.
type StrategyFunc[U any] struct {
	name string
	fn   func(ctx context.Context, r *http.Request, store session.Store, opts StrategyOptions) (Outcome[U], error)
}

// NewStrategyFunc creates a StrategyFunc.
func NewStrategyFunc[U any](
	name string,
	fn func(ctx context.Context, r *http.Request, store session.Store, opts StrategyOptions) (Outcome[U], error),
) *StrategyFunc[U] {
	return &StrategyFunc[U]{name: name, fn: fn}
}

// Name returns the strategy name.
func (f *StrategyFunc[U]) Name() string {
	return f.name
}

// Authenticate calls the wrapped function.
func (f *StrategyFunc[U]) Authenticate(ctx context.Context, r *http.Request, store session.Store, opts StrategyOptions) (Outcome[U], error) {
	return f.fn(ctx, r, store, opts)
}

// LoadSession reads the session referenced by r's cookies.
func LoadSession(ctx context.Context, store session.Store, r *http.Request) (*session.Session, error) {
	return store.GetSession(ctx, CookieHeader(r))
}

// CookieHeader joins every Cookie header of r into one value.
func CookieHeader(r *http.Request) string {
	return strings.Join(r.Header.Values("Cookie"), "; ")
}

// Succeed finishes a successful strategy run. Without a success redirect it
// returns Authenticated(principal). With one, it stores principal under
// opts.SessionKey, commits sess, and returns a redirect carrying the
// Set-Cookie header.
func Succeed[U any](ctx context.Context, store session.Store, sess *session.Session, opts StrategyOptions, principal U) (Outcome[U], error) {
	url, ok := opts.SuccessRedirect()
	if !ok {
		return Authenticated(principal), nil
	}
	sess.Set(opts.SessionKey, principal)
	header, err := store.CommitSession(ctx, sess)
	if err != nil {
		return Outcome[U]{}, err
	}
	return RedirectTo[U](url, http.Header{"Set-Cookie": {header}}), nil
}

// Fail finishes a rejected strategy run. Without a failure redirect it
// returns Failed(reason). With one, it flashes the message under
// opts.ErrorKey(), commits sess, and returns a redirect.
func Fail[U any](ctx context.Context, store session.Store, sess *session.Session, opts StrategyOptions, reason *AuthorizationError) (Outcome[U], error) {
	url, ok := opts.FailureRedirect()
	if !ok {
		return Failed[U](reason), nil
	}
	if reason == nil {
		reason = NewAuthorizationError("authentication failed", nil)
	}
	sess.Flash(opts.ErrorKey(), reason.Message)
	header, err := store.CommitSession(ctx, sess)
	if err != nil {
		return Outcome[U]{}, err
	}
	return RedirectTo[U](url, http.Header{"Set-Cookie": {header}}), nil
}
