package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-logger/glog"
)

// Middleware returns middleware that validates bearer tokens.
// Requires Authorization header: Bearer <token>
// Returns 401 if token is missing or invalid.
// On success, adds Claims to context.
func Middleware(verifier TokenVerifier, logger glog.Logger) func(http.Handler) http.Handler {
	logger = glog.Ensure(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			// Check for "Bearer " prefix (case-sensitive)
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeJSONError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			claims, err := verifier.VerifyIDToken(r.Context(), token)
			if err != nil {
				logger.Warn("Rejected API token", "path", r.URL.Path, "error", err)
				writeJSONError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// writeJSONError writes a JSON error response with the given status code and message
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
