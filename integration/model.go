package integration

import "time"

// Status of a provider integration record.
type Status string

const (
	// StatusDisconnected is the default for a never-connected or explicitly
	// disconnected record.
	StatusDisconnected Status = "disconnected"
	// StatusConnected means a usable grant exists.
	StatusConnected Status = "connected"
	// StatusError means the last refresh attempt failed terminally and the
	// stored tokens are unusable until the user reconnects.
	StatusError Status = "error"
)

// Record is the stored state of one (user, provider) OAuth grant. Token
// material is held encrypted; plaintext never reaches the store.
type Record struct {
	ID             string
	UserID         string
	Provider       string // e.g. "google", "github"
	Status         Status
	ProviderUserID string
	Scopes         []string

	AccessTokenCiphertext  string
	RefreshTokenCiphertext string // empty means the grant cannot self-refresh

	// TokenExpiresAt zero means the expiry was never reported; treat as expired.
	TokenExpiresAt time.Time

	ErrorReason string

	CreatedAt time.Time
	// UpdatedAt is bumped on every mutation and doubles as the optimistic
	// version token for UpdateTokens.
	UpdatedAt time.Time
}

// Connection holds the encrypted grant material written by a successful
// consent callback.
type Connection struct {
	ProviderUserID         string
	Scopes                 []string
	AccessTokenCiphertext  string
	RefreshTokenCiphertext string
	ExpiresAt              time.Time
}

// TokenUpdate carries a refreshed token pair to UpdateTokens. An empty
// RefreshTokenCiphertext keeps the stored refresh token.
type TokenUpdate struct {
	AccessTokenCiphertext  string
	RefreshTokenCiphertext string
	ExpiresAt              time.Time
}
