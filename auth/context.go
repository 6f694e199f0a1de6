package auth

import (
	"context"
	"time"
)

type ctxKey int

const claimsKey ctxKey = iota

// LocalSubject is the user id injected when auth is disabled for local runs.
const LocalSubject = "local-dev"

// Claims contains the verified Clerk session token details we care about.
type Claims struct {
	Subject         string
	Issuer          string
	SessionID       string
	AuthorizedParty string
	// Email and Name are only present when the Clerk session token template adds them.
	Email     string
	Name      string
	ExpiresAt time.Time
	Raw       map[string]any
}

// WithClaims stores auth claims in a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns claims from a context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
