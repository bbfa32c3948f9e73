package session

import (
	"context"
)

type contextKey string

const (
	sessionKey contextKey = "USER_SESSION_DATA"
)
const sessionCookieName = "session"

// UserSessionData holds authenticated user information
type UserSessionData struct {
	UserID    string `json:"user_id"`
	SignedIn  bool   `json:"signed_in"`
	ExpiresAt int64  `json:"expires_at"`
	Domain    string `json:"domain,omitempty"`
}

// WithContext attaches session data to context
func (u *UserSessionData) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionKey, u)
}
