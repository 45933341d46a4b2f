// Package auth orchestrates pluggable authentication strategies and the
// session-persisted principal they produce.
//
// An Authenticator holds a registry of named Strategy values and a
// session.Store. Authenticate dispatches a request to one strategy;
// IsAuthenticated reads the principal back from the session without running
// any strategy. Both return an Outcome:
//
//   - Authenticated: a principal is available.
//   - Redirect: the caller should answer with a redirect (login page, success
//     page, provider authorization URL) and attach the carried headers.
//   - Failed: authentication was attempted and rejected.
//   - Unauthenticated: no principal and nothing else to do.
//
// The error return is reserved for internal failures and for unknown
// strategy names (StrategyNotFoundError).
//
// Redirect behaviour is selected per call with a RedirectPolicy:
//
//	out, err := authn.Authenticate(ctx, "local", r, auth.RedirectOnSuccess("/dashboard"))
//	if !auth.WriteOutcome(w, r, out, err) {
//	    return // redirect, failure or error already written
//	}
//	user, _ := out.Principal()
//
// The Authenticator never inspects the principal. Stores that serialize
// values (such as session.CookieStore) hand back their decoded JSON shape,
// which IsAuthenticated converts back into the principal type.
package auth
