package auth

import (
	"errors"
	"net/http"

	"github.com/jonwraymond/authflow/observe"
)

// WriteOutcome renders out (or err) as an HTTP response. The outcome's
// headers are copied to w for every kind:
//
//	Redirect            302 (303 after POST)
//	Failed              401 with the failure message
//	Unauthenticated     401
//	strategy not found  401
//	other errors        500
//
// Authenticated outcomes write nothing and report true, so the caller can
// continue handling the request.
func WriteOutcome[U any](w http.ResponseWriter, r *http.Request, out Outcome[U], err error) bool {
	if err != nil {
		if errors.Is(err, ErrStrategyNotFound) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return false
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}

	for key, values := range out.Header() {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	switch out.Kind() {
	case KindAuthenticated:
		return true
	case KindRedirect:
		redirect, _ := out.Redirect()
		code := http.StatusFound
		if r.Method == http.MethodPost {
			code = http.StatusSeeOther
		}
		http.Redirect(w, r, redirect.URL, code)
	case KindFailed:
		http.Error(w, out.Failure().Message, http.StatusUnauthorized)
	default:
		http.Error(w, "authentication required", http.StatusUnauthorized)
	}
	return false
}

// Handler returns an endpoint that runs the named strategy. On an
// Authenticated outcome the principal is placed on the request context and
// next is called; a nil next answers 204. Other outcomes go to WriteOutcome.
func (a *Authenticator[U]) Handler(name string, policy RedirectPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := a.Authenticate(r.Context(), name, r, policy)
		if err != nil && !errors.Is(err, ErrStrategyNotFound) {
			a.logger.Error(r.Context(), "authenticate", observe.Field{Key: "auth.strategy", Value: name}, observe.Field{Key: "error", Value: err})
		}
		if !WriteOutcome(w, r, out, err) {
			return
		}
		if next == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		principal, _ := out.Principal()
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// LogoutHandler destroys the session and redirects to redirectTo.
func (a *Authenticator[U]) LogoutHandler(redirectTo string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := a.Logout(r.Context(), r, redirectTo)
		WriteOutcome(w, r, out, err)
	})
}

// Require guards next with IsAuthenticated under policy. The principal is
// placed on the request context (see PrincipalFromContext). Use
// RedirectOnFailure to send anonymous requests to a login page instead of
// answering 401.
func (a *Authenticator[U]) Require(policy RedirectPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := a.IsAuthenticated(r.Context(), r, policy)
		if !WriteOutcome(w, r, out, err) {
			return
		}
		principal, _ := out.Principal()
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}
