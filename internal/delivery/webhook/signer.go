package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignaturePrefix precedes the hex digest in SignatureHeader
const SignaturePrefix = "sha256="

// Sign returns "sha256=<hex HMAC-SHA256 of body keyed by secret>".
//
// Example:
//
//	Sign("my-secret-key", []byte("hello world"))
//	// "sha256=90eb182d8396f16d4341d582047f45c0a97d73388c5377d9ced478a2212295ad"
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
// The comparison is constant-time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
