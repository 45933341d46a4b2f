package apikey

import "errors"

var (
	ErrNilStore    = errors.New("apikey: key store is nil")
	ErrInvalidHash = errors.New("apikey: key hash must be 64 hex characters")
)

// Failure messages returned in Failed outcomes.
const (
	MsgMissingKey = "missing api key"
	MsgInvalidKey = "invalid api key"
	MsgKeyExpired = "api key expired"
)
