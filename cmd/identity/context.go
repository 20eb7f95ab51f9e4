package identity

import "context"

type contextKey int

const userIDKey contextKey = iota

// WithUserID returns a child context carrying the verified user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the verified user id from the request context.
// Empty string means the request did not pass a Gate.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}
