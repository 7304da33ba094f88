package auth

import "context"

type contextKey struct{}

// ContextWithClaims attaches verified access claims to the context.
func ContextWithClaims(ctx context.Context, claims *AccessClaims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext returns the verified access claims, if any.
func ClaimsFromContext(ctx context.Context) (*AccessClaims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*AccessClaims)
	return claims, ok
}
