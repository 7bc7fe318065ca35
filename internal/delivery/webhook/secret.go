package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	SecretLength = 24
	SecretPrefix = "whn_"
)

// GenerateSecret returns a random shared secret for webhook.secret
func GenerateSecret() (string, error) {
	b := make([]byte, SecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}

// MaskSecret hides all but the edges of a secret for log output
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 12:
		return "****"
	}
	return secret[:6] + "..." + secret[len(secret)-4:]
}
