package olympus

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tartarus-sandbox/persephone/pkg/hermes"
)

// AuthMiddleware requires "Authorization: Bearer <apiKey>" on every request.
// With an empty apiKey it logs a warning once and lets everything through.
func AuthMiddleware(logger hermes.Logger, apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		logger.Warn(context.Background(), "Running in INSECURE mode: no API key configured, all requests are allowed", nil)
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "Unauthorized: Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
			logger.Warn(r.Context(), "Rejected request with invalid API key", map[string]any{
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			})
			http.Error(w, "Unauthorized: Invalid API Key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
