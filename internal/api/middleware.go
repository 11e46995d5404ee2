package api

import (
	"context"
	"net/http"
	"strings"

	"prediction-api/internal/auth"
	"prediction-api/internal/models"
)

type contextKey string

const userContextKey = contextKey("user")

// AuthMiddleware verifies the bearer token, resolves the user it names and
// rejects inactive accounts. Token validity alone is not enough: an account
// deactivated after issuance still holds valid tokens until expiry.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || headerParts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		tokenString := headerParts[1]

		claims, err := auth.VerifyJWT(tokenString, s.config.JWT.Secret)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		user, err := s.store.GetUserByUsername(r.Context(), claims.Username)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}
		if !user.IsActive {
			http.Error(w, "Inactive user", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetUserFromContext(ctx context.Context) *models.User {
	if user, ok := ctx.Value(userContextKey).(*models.User); ok {
		return user
	}
	return nil
}
