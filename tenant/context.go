package tenant

import (
	"context"
)

type contextKey struct{}

// NewContext returns a context with the tenant identifier bound. The
// binding lives exactly as long as the request's context chain, never in
// shared mutable state, so concurrent requests cannot observe each other's
// tenant.
func NewContext(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// FromContext reads the tenant identifier bound to the context. The second
// return value is false when no tenant is bound.
func FromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(contextKey{}).(string)
	if !ok || tenantID == "" {
		return "", false
	}
	return tenantID, true
}

// Clear returns a context with any tenant binding removed. Downstream
// lookups through FromContext report no tenant even though ancestor
// contexts still carry one.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, "")
}
