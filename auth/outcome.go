package auth

import "net/http"

// Kind tags an Outcome.
type Kind int

const (
	KindUnauthenticated Kind = iota
	KindAuthenticated
	KindRedirect
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticated:
		return "authenticated"
	case KindRedirect:
		return "redirect"
	case KindFailed:
		return "failed"
	default:
		return "unauthenticated"
	}
}

// Redirect asks the caller to answer with a redirect to URL, attaching Header
// (typically a Set-Cookie that commits or destroys the session).
type Redirect struct {
	URL    string
	Header http.Header
}

// Outcome is the result of an authentication call. The zero value is
// Unauthenticated.
type Outcome[U any] struct {
	kind      Kind
	principal U
	redirect  *Redirect
	failure   *AuthorizationError
	header    http.Header
}

// Authenticated returns an outcome carrying principal.
func Authenticated[U any](principal U) Outcome[U] {
	return Outcome[U]{kind: KindAuthenticated, principal: principal}
}

// RedirectTo returns a redirect outcome. header may be nil.
func RedirectTo[U any](url string, header http.Header) Outcome[U] {
	if header == nil {
		header = http.Header{}
	}
	return Outcome[U]{kind: KindRedirect, redirect: &Redirect{URL: url, Header: header}}
}

// Failed returns a failure outcome. A nil err becomes a generic message.
func Failed[U any](err *AuthorizationError) Outcome[U] {
	if err == nil {
		err = NewAuthorizationError("authentication failed", nil)
	}
	return Outcome[U]{kind: KindFailed, failure: err}
}

// Unauthenticated returns the empty outcome.
func Unauthenticated[U any]() Outcome[U] {
	return Outcome[U]{}
}

func (o Outcome[U]) Kind() Kind { return o.kind }

// Principal returns the principal of an Authenticated outcome.
func (o Outcome[U]) Principal() (U, bool) {
	return o.principal, o.kind == KindAuthenticated
}

// Redirect returns the redirect of a Redirect outcome.
func (o Outcome[U]) Redirect() (*Redirect, bool) {
	return o.redirect, o.kind == KindRedirect
}

// Failure returns the reason of a Failed outcome, or nil.
func (o Outcome[U]) Failure() *AuthorizationError {
	return o.failure
}

// Header returns the response headers the caller should send with o: the
// redirect's header for Redirect outcomes, otherwise whatever WithHeader
// attached. It may be nil.
func (o Outcome[U]) Header() http.Header {
	if o.redirect != nil {
		return o.redirect.Header
	}
	return o.header
}

// WithHeader returns a copy of o that also carries header. A strategy uses it
// when it changed the session but its outcome is not a redirect.
func (o Outcome[U]) WithHeader(header http.Header) Outcome[U] {
	merged := o.Header().Clone()
	if merged == nil {
		merged = http.Header{}
	}
	for key, values := range header {
		for _, v := range values {
			merged.Add(key, v)
		}
	}
	if o.redirect != nil {
		r := *o.redirect
		r.Header = merged
		o.redirect = &r
	} else {
		o.header = merged
	}
	return o
}

// Err returns the failure as an error, or nil for any other kind.
func (o Outcome[U]) Err() error {
	if o.kind != KindFailed {
		return nil
	}
	return o.failure
}
