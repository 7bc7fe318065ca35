package auth

import (
	"context"
)

// contextKey type for context value keys
type contextKey string

const claimsKey contextKey = "claims"

// WithClaims adds claims to context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims retrieves claims from context
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// CallerID returns the authenticated caller's uid, or "" for anonymous requests
func CallerID(ctx context.Context) string {
	if claims, ok := GetClaims(ctx); ok {
		return claims.UID
	}
	return ""
}
