package auth

type redirectMode int

const (
	noRedirect redirectMode = iota
	redirectOnSuccess
	redirectOnFailure
)

// RedirectPolicy selects what a call does instead of returning a plain
// outcome. The zero value is NoRedirect.
type RedirectPolicy struct {
	mode redirectMode
	url  string
}

// NoRedirect returns outcomes as values.
func NoRedirect() RedirectPolicy {
	return RedirectPolicy{}
}

// RedirectOnSuccess redirects to url once a principal is available.
// An empty url yields NoRedirect.
func RedirectOnSuccess(url string) RedirectPolicy {
	if url == "" {
		return NoRedirect()
	}
	return RedirectPolicy{mode: redirectOnSuccess, url: url}
}

// RedirectOnFailure redirects to url when no principal is available.
// An empty url yields NoRedirect.
func RedirectOnFailure(url string) RedirectPolicy {
	if url == "" {
		return NoRedirect()
	}
	return RedirectPolicy{mode: redirectOnFailure, url: url}
}

// ParseRedirectPolicy builds a policy from optional success and failure
// URLs, as found in query strings or configuration. Supplying both is
// rejected with ErrConflictingRedirects.
func ParseRedirectPolicy(successRedirect, failureRedirect string) (RedirectPolicy, error) {
	switch {
	case successRedirect != "" && failureRedirect != "":
		return RedirectPolicy{}, ErrConflictingRedirects
	case successRedirect != "":
		return RedirectOnSuccess(successRedirect), nil
	case failureRedirect != "":
		return RedirectOnFailure(failureRedirect), nil
	default:
		return NoRedirect(), nil
	}
}

// OnSuccess returns the success redirect target, if any.
func (p RedirectPolicy) OnSuccess() (string, bool) {
	return p.url, p.mode == redirectOnSuccess
}

// OnFailure returns the failure redirect target, if any.
func (p RedirectPolicy) OnFailure() (string, bool) {
	return p.url, p.mode == redirectOnFailure
}

func (p RedirectPolicy) String() string {
	switch p.mode {
	case redirectOnSuccess:
		return "success:" + p.url
	case redirectOnFailure:
		return "failure:" + p.url
	default:
		return "none"
	}
}

// StrategyOptions are passed to every Strategy invocation.
type StrategyOptions struct {
	// SessionKey is where the principal lives in the session.
	SessionKey string

	// Redirect is the caller's redirect policy for this call.
	Redirect RedirectPolicy
}

// SuccessRedirect returns the success redirect target, if any.
func (o StrategyOptions) SuccessRedirect() (string, bool) {
	return o.Redirect.OnSuccess()
}

// FailureRedirect returns the failure redirect target, if any.
func (o StrategyOptions) FailureRedirect() (string, bool) {
	return o.Redirect.OnFailure()
}

// ErrorKey is the session key under which strategies flash the failure
// message before a failure redirect.
func (o StrategyOptions) ErrorKey() string {
	return o.SessionKey + ":error"
}
