package auth

import (
	"context"
	"net/http"
)

type contextKey int

const accountIDKey contextKey = iota

// AccountID returns the authenticated account ID stored by RequireAPIKey.
func AccountID(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// unauthorizedFunc writes the service's 401 error envelope; injected by
// the handler package so auth does not depend on response shaping.
type unauthorizedFunc func(w http.ResponseWriter, message string)

// RequireAPIKey is middleware for trader endpoints: it resolves the
// X-API-Key header through the keychain and stores the account ID on
// the request context. Missing or unknown keys get a 401.
func RequireAPIKey(kc *Keychain, unauthorized unauthorizedFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				unauthorized(w, "missing X-API-Key header")
				return
			}
			accountID, ok := kc.Lookup(key)
			if !ok {
				unauthorized(w, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminToken is middleware for admin endpoints: the X-Admin-Token
// header must match the configured token.
func RequireAdminToken(token string, unauthorized unauthorizedFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !CheckAdminToken(r.Header.Get("X-Admin-Token"), token) {
				unauthorized(w, "missing or invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
