package olympus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
)

func TestAuthMiddleware(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		apiKey         string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "Insecure Mode (No Key)",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Secure Mode - Valid Key",
			apiKey:         "secret-key",
			authHeader:     "Bearer secret-key",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Secure Mode - Case Insensitive Scheme",
			apiKey:         "secret-key",
			authHeader:     "bearer secret-key",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Secure Mode - Missing Header",
			apiKey:         "secret-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Secure Mode - Invalid Header Format",
			apiKey:         "secret-key",
			authHeader:     "Basic secret-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Secure Mode - Wrong Key",
			apiKey:         "secret-key",
			authHeader:     "Bearer wrong-key",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(hermes.NewNoopLogger(), tt.apiKey, nextHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}
