package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"bayou/internal/auth"
)

// UnprotectedRoutes defines routes that don't require JWT authentication
var UnprotectedRoutes = map[string]bool{
	"/health":   true,
	"/metrics":  true,
	"/register": true,
	"/login":    true,
}

// Define a custom context key type to avoid collisions
type contextKey string

const identityKey contextKey = "identity"

// SetIdentityInContext saves the caller identity in the request context
func SetIdentityInContext(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentityFromContext retrieves the caller identity from the context
func GetIdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}

// GetUserIDFromContext retrieves the caller's user ID from the context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	identity, ok := GetIdentityFromContext(ctx)
	return identity.UID, ok
}

// AuthMiddleware validates the bearer token and places the resulting
// identity (UID plus the admin claim baked into the token) in the
// request context. The admin claim is a cache; authorization decisions
// downstream re-check the whitelist.
func AuthMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if the route is protected
		if UnprotectedRoutes[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := bearerToken(r)
		if !ok {
			// Websocket upgrades from browsers cannot set headers;
			// accept the token as a query parameter there.
			tokenString = r.URL.Query().Get("token")
			if tokenString == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
		}

		claims, err := auth.ValidateToken(secret, tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		identity := auth.Identity{UID: claims.UserID, Admin: claims.Admin}
		next.ServeHTTP(w, r.WithContext(SetIdentityInContext(r.Context(), identity)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(authHeader, "Bearer "), true
}
