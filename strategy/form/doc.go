// Package form provides a username/password Strategy.
//
// Credentials are read from an application/x-www-form-urlencoded or
// multipart body, or from a JSON object when the request Content-Type is
// application/json. Verification is delegated to a VerifyFunc; the bundled
// PasswordVerifier checks bcrypt and argon2 hashes.
//
// Redirect handling follows auth.Succeed and auth.Fail: with a success
// redirect the principal is committed to the session before redirecting,
// and with a failure redirect the failure message is flashed under
// StrategyOptions.ErrorKey().
//
// WithThrottle caps attempts per username. Throttled attempts fail with
// MsgTooManyAttempts before the VerifyFunc runs.
package form
