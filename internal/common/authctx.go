package common

import (
	"context"
	"time"
)

type ctxKey string

const principalKey ctxKey = "auth/principal"

// Principal is the authenticated admin attached to a request.
type Principal struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
}

// WithPrincipal stores the authenticated principal on the provided context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the authenticated principal from the context if present.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.Subject != ""
}
