package gateway

import (
	"context"

	"gateway-service/internal/model"
)

type identityContextKey struct{}

// WithIdentity stashes the resolved caller identity for downstream
// handlers.
func WithIdentity(ctx context.Context, id model.CallerIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFrom returns the caller identity resolved by the admission
// middleware, if any.
func IdentityFrom(ctx context.Context) (model.CallerIdentity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(model.CallerIdentity)
	return id, ok
}
