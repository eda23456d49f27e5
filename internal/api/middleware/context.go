package middleware

import (
	"context"
	"fmt"
)

// contextKey is a custom type for context keys to avoid collisions with
// other packages' context values.
type contextKey string

// Context keys for request-scoped values. There is no tenant concept in
// this system; role lives on the user record and is read through the
// permission/risk engines rather than injected here.
const (
	UserIDKey    contextKey = "user_id"
	SessionIDKey contextKey = "session_id"
)

// GetUserID safely extracts the authenticated user id from context.
func GetUserID(ctx context.Context) (string, error) {
	val, ok := ctx.Value(UserIDKey).(string)
	if !ok || val == "" {
		return "", fmt.Errorf("user_id not found in context")
	}
	return val, nil
}

// GetSessionID safely extracts the session id from context.
func GetSessionID(ctx context.Context) (string, error) {
	val, ok := ctx.Value(SessionIDKey).(string)
	if !ok || val == "" {
		return "", fmt.Errorf("session_id not found in context")
	}
	return val, nil
}

// MustGetUserID extracts the user id and panics if not found. Use only
// where AuthMiddleware is guaranteed to have run first.
func MustGetUserID(ctx context.Context) string {
	id, err := GetUserID(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return id
}

// MustGetSessionID extracts the session id and panics if not found.
func MustGetSessionID(ctx context.Context) string {
	id, err := GetSessionID(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return id
}
