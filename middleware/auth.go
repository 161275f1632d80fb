package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"pixelstack/handlers/auth"
)

type contextKey string

// ClaimsContextKey carries the authenticated user's claims through the
// request context.
const ClaimsContextKey = contextKey("claims")

// AuthJWT rejects requests without a valid bearer token and stores the
// parsed claims in the context.
func AuthJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, r, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			unauthorized(w, r, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := auth.ParseJWT(parts[1])
		if err != nil {
			unauthorized(w, r, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]string{"error": msg})
}
