// Package observe provides logging, tracing and metrics for authentication
// attempts.
//
// It wraps OpenTelemetry so the auth package can record one span, one set of
// counters and one log line per Authenticate, IsAuthenticated or Logout call
// without depending on an SDK. When nothing is configured every primitive is
// a no-op.
package observe
