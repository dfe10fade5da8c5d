// Package auth verifies the bearer tokens issued by the hosted auth platform
// and exposes the resolved identity through request context.
package auth

import "context"

// Identity describes the authenticated principal attached to a request.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

type identityContextKey struct{}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity from the context when present.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
