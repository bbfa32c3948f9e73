package provider

import (
	"time"

	"golang.org/x/oauth2/endpoints"
)

// Kind classifies a provider failure by how the caller should react.
type Kind string

const (
	// KindInvalidGrant means the refresh token was rejected and will never
	// work again. The stored grant is dead.
	KindInvalidGrant Kind = "invalid_grant"
	// KindTransient covers network failures, timeouts, 5xx and rate limits.
	// The stored grant is still good, try again later.
	KindTransient Kind = "transient"
	// KindMisconfigured means our client registration is broken (bad client
	// id/secret, revoked app). Retrying will not help until an operator
	// fixes the configuration.
	KindMisconfigured Kind = "misconfigured"
)

// Error is a classified provider failure.
type Error struct {
	Kind Kind
	// Code is the OAuth error code from the provider response, when present.
	Code string
	err  error
}

func (e *Error) Error() string {
	msg := "provider error (" + string(e.Kind) + ")"
	if e.Code != "" {
		msg = "provider error (" + string(e.Kind) + "/" + e.Code + ")"
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// Grant is the token material returned by a successful refresh.
type Grant struct {
	AccessToken string
	// RefreshToken is set only when the provider rotated it. Empty means
	// keep using the one that was sent.
	RefreshToken string
	ExpiresAt    time.Time
}

// Config holds the OAuth client registration for one provider.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	// RevokeURL is optional. Providers without one skip remote revocation
	// on disconnect.
	RevokeURL string
	Scopes    []string
}

// Google returns the registration for Google's OAuth endpoints.
func Google(clientID, clientSecret string, scopes ...string) Config {
	return Config{
		Name:         "google",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      endpoints.Google.AuthURL,
		TokenURL:     endpoints.Google.TokenURL,
		RevokeURL:    "https://oauth2.googleapis.com/revoke",
		Scopes:       scopes,
	}
}
