package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/sorteomx/sorteo/internal/token"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// IdentityContextKey stores the authenticated identity in request context.
	IdentityContextKey contextKey = "identity"
)

// AuthMiddleware requires a valid bearer token.
// On failure it returns 401 with a JSON error body.
func AuthMiddleware(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			id, err := tokens.Verify(r.Context(), raw)
			if err != nil {
				log.Printf("token verification failed: %v", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentityFromContext extracts the authenticated identity from request
// context.
func GetIdentityFromContext(ctx context.Context) (*token.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(*token.Identity)
	return id, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}
