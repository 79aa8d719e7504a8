package identity

import (
	"net/http"
	"strings"

	"classroomd/internal/apperr"
)

// Middleware validates the Bearer token on every request and injects the
// authenticated UserContext, grounded on
// volaticloud/internal/auth.AuthMiddleware (Bearer extraction, optional
// mode) with Keycloak verification replaced by TokenManager.Verify.
type Middleware struct {
	tokens   *TokenManager
	optional bool
}

func NewMiddleware(tokens *TokenManager, optional bool) *Middleware {
	return &Middleware{tokens: tokens, optional: optional}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			writeUnauthorized(w, "missing Authorization header")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			writeUnauthorized(w, "invalid Authorization header format, expected: Bearer <token>")
			return
		}

		user, err := m.tokens.Verify(token)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := SetUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth always requires a valid token.
func RequireAuth(tokens *TokenManager) func(http.Handler) http.Handler {
	return NewMiddleware(tokens, false).Handler
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

// RequireRole wraps next so it 403s unless the authenticated user's role
// is one of allowed. Must run after Middleware/RequireAuth.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		set[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := GetUserContext(r.Context())
			if err != nil {
				writeUnauthorized(w, "authentication required")
				return
			}
			if !set[string(user.Role)] {
				ae := apperr.NotAuthorized("RequireRole", "insufficient role")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(ae.Status())
				_, _ = w.Write([]byte(`{"error":"` + ae.Message + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
