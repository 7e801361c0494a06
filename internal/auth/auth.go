// Package auth extracts the authenticated user identity from incoming
// requests. The identity provider itself (OAuth flow, session issuing)
// lives outside this service; by the time a request reaches the core it
// carries either a signed bearer token or, in development, a plain
// header. The core trusts the extracted identity without re-verifying.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

// UserID returns the authenticated user id stored in ctx, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithUserID returns a context carrying the given user id. Exposed for
// tests that bypass the middleware.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Middleware authenticates requests. With a non-empty secret it expects
// an HS256 bearer token and uses its subject claim as the user id; the
// X-User-ID header is accepted as a development fallback. Requests
// without an identity get 401.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""

			if header := r.Header.Get("Authorization"); secret != "" && strings.HasPrefix(header, "Bearer ") {
				raw := strings.TrimPrefix(header, "Bearer ")
				token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
					return []byte(secret), nil
				}, jwt.WithValidMethods([]string{"HS256"}))
				if err == nil && token.Valid {
					if sub, err := token.Claims.GetSubject(); err == nil {
						userID = sub
					}
				}
			}

			if userID == "" {
				userID = r.Header.Get("X-User-ID")
			}

			if userID == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
