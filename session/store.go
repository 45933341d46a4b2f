package session

import "context"

// Store loads and persists sessions keyed by request cookies.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use and must
//     keep sessions of different clients independent.
//   - Context: methods should honor cancellation/deadlines when they do I/O.
//   - Errors: GetSession returns a fresh empty Session (not an error) when the
//     cookie is absent, expired or fails verification. Errors are reserved for
//     backend failures.
type Store interface {
	// GetSession returns the session referenced by a Cookie header value.
	GetSession(ctx context.Context, cookieHeader string) (*Session, error)

	// CommitSession persists s and returns the Set-Cookie header value to
	// attach to the response.
	CommitSession(ctx context.Context, s *Session) (string, error)

	// DestroySession discards s and returns a Set-Cookie header value that
	// expires the client cookie.
	DestroySession(ctx context.Context, s *Session) (string, error)
}
