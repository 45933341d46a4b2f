package auth

import "context"

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying principal.
func WithPrincipal[U any](ctx context.Context, principal U) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext[U any](ctx context.Context) (U, bool) {
	p, ok := ctx.Value(principalKey{}).(U)
	return p, ok
}
