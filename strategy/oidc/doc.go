// Package oidc provides an OpenID Connect authorization-code Strategy built
// on github.com/coreos/go-oidc/v3 and golang.org/x/oauth2.
//
// The same strategy serves both legs of the flow. A request without a code
// parameter starts a login: a state and nonce are stored in the session
// under "<name>:state" and "<name>:nonce" and the outcome redirects to the
// provider. The callback request (code and state parameters) checks the
// state, exchanges the code, verifies the id_token and its nonce, optionally
// checks group membership, and maps the claims to a principal.
//
// The callback removes the state and nonce from the session whatever the
// result. With a redirect the session is committed before redirecting.
// Without one the session is still committed and the Set-Cookie header is
// attached to the Authenticated or Failed outcome (see auth.Outcome.Header);
// persisting the principal is left to the caller.
package oidc
