package oidc

import "errors"

var (
	ErrMissingIssuer      = errors.New("oidc: issuer is required")
	ErrMissingClientID    = errors.New("oidc: client_id is required")
	ErrMissingRedirectURL = errors.New("oidc: redirect_url is required")
	ErrMissingGroupsClaim = errors.New("oidc: groups_claim is required when allowed_groups is set")
	ErrNilVerifier        = errors.New("oidc: id token verifier is nil")
	ErrNilMapper          = errors.New("oidc: claims mapper is nil")
	ErrMissingSubject     = errors.New("oidc: id token has no subject")
	ErrUnsupportedGroups  = errors.New("oidc: groups claim has an unsupported type")
	ErrGroupsClaimMissing = errors.New("oidc: groups claim is missing")
	ErrGroupNotAllowed    = errors.New("oidc: user is not in an allowed group")
)

// Failure messages returned in Failed outcomes.
const (
	MsgMissingState = "missing auth state"
	MsgStateExpired = "auth state expired"
	MsgInvalidState = "invalid state"
	MsgInvalidCode  = "invalid code"
	MsgMissingToken = "missing id_token"
	MsgInvalidToken = "invalid id_token"
	MsgInvalidNonce = "invalid nonce"
	MsgForbidden    = "user is not in an allowed group"
)
