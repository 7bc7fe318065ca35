package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseAuth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/otiai10/orderhook/internal/config"
)

// idTokenVerifier is an interface for verifying ID tokens
// Both firebaseAuth.Client and firebaseAuth.TenantClient implement this
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
}

// FirebaseTokenVerifier implements TokenVerifier using Firebase Admin SDK
type FirebaseTokenVerifier struct {
	verifier idTokenVerifier
	tenantID string
}

var _ TokenVerifier = (*FirebaseTokenVerifier)(nil)

// NewFirebaseTokenVerifier creates a verifier from the auth config block.
// A tenant id switches to the Identity Platform tenant client.
func NewFirebaseTokenVerifier(ctx context.Context, cfg config.AuthConfig) (*FirebaseTokenVerifier, error) {
	var opts []option.ClientOption
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID: cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	var verifier idTokenVerifier = authClient
	if cfg.TenantID != "" {
		tenantClient, err := authClient.TenantManager.AuthForTenant(cfg.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tenant auth client for %s: %w", cfg.TenantID, err)
		}
		verifier = tenantClient
	}

	return &FirebaseTokenVerifier{
		verifier: verifier,
		tenantID: cfg.TenantID,
	}, nil
}

// VerifyIDToken verifies a Firebase ID token and returns the decoded claims
func (v *FirebaseTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Claims, error) {
	token, err := v.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return &Claims{
		UID:           token.UID,
		Email:         getStringClaim(token.Claims, "email"),
		EmailVerified: getBoolClaim(token.Claims, "email_verified"),
		ProviderID:    token.Firebase.SignInProvider,
		TenantID:      v.tenantID,
	}, nil
}

// getStringClaim safely extracts a string claim from the claims map
func getStringClaim(claims map[string]any, key string) string {
	str, _ := claims[key].(string)
	return str
}

func getBoolClaim(claims map[string]any, key string) bool {
	b, _ := claims[key].(bool)
	return b
}
