// Package bearer provides a stateless JWT bearer-token Strategy.
//
// Tokens are read from the Authorization header ("Bearer <jwt>") and
// validated with github.com/golang-jwt/jwt/v5. Signing keys come from a
// KeyProvider: StaticKeyProvider for shared secrets or fixed public keys,
// JWKSKeyProvider for keys published at a JWKS endpoint.
//
// JWKS refreshes retry transport errors and 5xx responses when
// JWKSConfig.MaxAttempts allows it.
//
// Rejected tokens produce a Failed outcome. A JWKS endpoint that cannot be
// reached, with no previously fetched key to fall back on, is an internal
// error.
package bearer
