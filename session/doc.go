// Package session defines the session store contract used by authflow and
// ships two engines that satisfy it.
//
// A Store turns the value of a request's Cookie header into a Session,
// and turns a Session back into a Set-Cookie header value. Strategies and the
// Authenticator never touch cookies directly; every principal write goes
// through Store.CommitSession.
//
// Engines:
//   - CookieStore keeps the whole session in a signed (optionally encrypted)
//     cookie using gorilla/securecookie.
//   - MemoryStore keeps session data server-side keyed by a random ID and
//     only places the signed ID in the cookie.
//
// Both engines are safe for concurrent use and never share mutable state
// between Sessions returned for different requests.
package session
