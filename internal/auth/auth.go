// Package auth guards the HTTP trigger API with Firebase ID tokens.
package auth

import (
	"context"
)

// Claims represents the decoded token claims of an API caller
type Claims struct {
	UID           string `json:"uid"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	ProviderID    string `json:"provider_id,omitempty"`
	TenantID      string `json:"tenant_id,omitempty"`
}

// TokenVerifier verifies bearer ID tokens
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Claims, error)
}
