package observe

// Operation names recorded on spans, metrics and logs.
const (
	OpAuthenticate    = "authenticate"
	OpIsAuthenticated = "is_authenticated"
	OpLogout          = "logout"
)

// Attempt describes one authentication call for telemetry purposes.
type Attempt struct {
	Op       string // OpAuthenticate, OpIsAuthenticated or OpLogout
	Strategy string // registry name; empty for session-only operations
}

// SpanName returns auth.<op>.<strategy>, or auth.<op> without a strategy.
func (a Attempt) SpanName() string {
	if a.Strategy != "" {
		return "auth." + a.Op + "." + a.Strategy
	}
	return "auth." + a.Op
}

// fields returns the log fields identifying the attempt.
func (a Attempt) fields() []Field {
	fields := []Field{{Key: "auth.op", Value: a.Op}}
	if a.Strategy != "" {
		fields = append(fields, Field{Key: "auth.strategy", Value: a.Strategy})
	}
	return fields
}
