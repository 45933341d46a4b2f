package bearer

import "errors"

var (
	ErrNilKeyProvider = errors.New("bearer: key provider is nil")
	ErrNilMapper      = errors.New("bearer: claims mapper is nil")
	ErrKeyNotFound    = errors.New("bearer: signing key not found")
	ErrMissingSubject = errors.New("bearer: token has no subject")
	ErrJWKSURL        = errors.New("bearer: jwks url is required")
)

// Failure messages returned in Failed outcomes.
const (
	MsgMissingToken = "missing bearer token"
	MsgInvalidToken = "invalid token"
	MsgTokenExpired = "token expired"
)
