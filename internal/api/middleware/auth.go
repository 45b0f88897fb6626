package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/noughts/internal/api/apierr"
	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/services/auth"
)

type contextKey string

const (
	userIDContextKey  contextKey = "user_id"
	sessionContextKey contextKey = "session"
)

// SessionCookie is the name of the cookie carrying the session token
const SessionCookie = "session"

// Auth creates authentication middleware
func Auth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := authService.ValidateSession(r.Context(), token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			// Add session and user to context
			ctx := r.Context()
			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, userIDContextKey, session.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractToken extracts the session token from the request
func ExtractToken(r *http.Request) string {
	// Check Authorization header first
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// Fall back to cookie
	cookie, err := r.Cookie(SessionCookie)
	if err == nil {
		return cookie.Value
	}

	return ""
}

// GetUserID returns the authenticated user from the request context
func GetUserID(ctx context.Context) model.UserID {
	userID, _ := ctx.Value(userIDContextKey).(model.UserID)
	return userID
}

// GetSession returns the session from the request context
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// MustGetUserID returns the authenticated user or panics
func MustGetUserID(ctx context.Context) model.UserID {
	userID := GetUserID(ctx)
	if userID == "" {
		panic("no user in context - auth middleware not applied?")
	}
	return userID
}
