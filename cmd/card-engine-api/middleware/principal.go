// Package middleware provides HTTP middleware for the card engine API.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// PrincipalKey is the context key for the requesting principal.
const PrincipalKey contextKey = "principal"

// DefaultPrincipal is used when a request carries no X-Principal header.
const DefaultPrincipal = "anonymous"

// Principal resolves the caller identity from the X-Principal header and
// stores it on the request context. Decks and jobs are scoped per
// principal; there is no authentication beyond the header.
func Principal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := strings.TrimSpace(r.Header.Get("X-Principal"))
			if principal == "" {
				principal = DefaultPrincipal
			}
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) string {
	if v := ctx.Value(PrincipalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return DefaultPrincipal
}

// CORS returns CORS middleware for browser clients.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Principal")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
