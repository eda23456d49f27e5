package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lavente-auth/authcore/internal/token"
)

// AuthMiddleware validates the bearer access token on every protected
// route, injecting the user and session id into the request context.
func AuthMiddleware(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			result, err := tokens.Verify(parts[1], token.VerifyOptions{
				ExpectType: token.TypeAccess,
				Client:     &token.ClientContext{IP: r.RemoteAddr, UserAgent: r.UserAgent()},
			})
			if err != nil {
				slog.Warn("invalid_access_token", "error", err, "ip", r.RemoteAddr)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, result.UserID)
			ctx = context.WithValue(ctx, SessionIDKey, result.SessionID)
			SetSentryUser(ctx, result.UserID, result.Email, r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
