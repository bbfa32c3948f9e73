package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Seann-Moser/integrations/integration"
	"github.com/Seann-Moser/integrations/oauth/provider"
	"github.com/Seann-Moser/integrations/secrets"
)

// ErrInvalidInput marks a rejection the caller can fix by correcting the
// request.
var ErrInvalidInput = errors.New("invalid input")

// Manager owns the connect/disconnect/status lifecycle of provider
// integrations. Token freshness is the coordinator's job, not the manager's.
type Manager struct {
	store   integration.Store
	cipher  *secrets.Cipher
	clients map[string]provider.Client
}

// NewManager creates a new Manager instance.
func NewManager(store integration.Store, cipher *secrets.Cipher, clients map[string]provider.Client) *Manager {
	return &Manager{store: store, cipher: cipher, clients: clients}
}

// ConnectInput carries the outcome of a completed authorization exchange.
// The scopes are the ones the provider actually granted, which may differ
// from what was requested.
type ConnectInput struct {
	Provider       string   `json:"provider"`
	ProviderUserID string   `json:"provider_user_id"`
	GrantedScopes  []string `json:"granted_scopes"`
	AccessToken    string   `json:"access_token"`
	RefreshToken   string   `json:"refresh_token"`
	// ExpiresIn is seconds until the access token expires. Zero means the
	// provider did not say, and the token counts as already expired.
	ExpiresIn int64 `json:"expires_in"`
}

// Status is the user-facing view of one integration. It never exposes token
// material.
type Status struct {
	Provider       string    `json:"provider"`
	Connected      bool      `json:"connected"`
	RequiresReauth bool      `json:"requires_reauth,omitempty"`
	Scopes         []string  `json:"scopes,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

// Connect stores the grant as the user's integration for the provider,
// replacing any previous grant. Reconnecting an errored integration clears
// the error.
func (m *Manager) Connect(ctx context.Context, userID string, in ConnectInput) (*Status, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if in.Provider == "" {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidInput)
	}
	if _, ok := m.clients[in.Provider]; !ok {
		return nil, fmt.Errorf("%w: unknown provider %s", ErrInvalidInput, in.Provider)
	}
	if in.AccessToken == "" {
		return nil, fmt.Errorf("%w: access token is required", ErrInvalidInput)
	}

	conn := integration.Connection{
		ProviderUserID: in.ProviderUserID,
		Scopes:         in.GrantedScopes,
	}
	if in.ExpiresIn > 0 {
		conn.ExpiresAt = time.Now().UTC().Add(time.Duration(in.ExpiresIn) * time.Second)
	}
	var err error
	conn.AccessTokenCiphertext, err = m.cipher.Encrypt(in.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if in.RefreshToken != "" {
		conn.RefreshTokenCiphertext, err = m.cipher.Encrypt(in.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	rec, err := m.store.UpsertConnected(ctx, userID, in.Provider, conn)
	if err != nil {
		return nil, err
	}
	slog.Info("integration connected", "user_id", userID, "provider", in.Provider, "scopes", len(in.GrantedScopes))
	return statusOf(rec), nil
}

// Disconnect removes the user's grant for the provider. Remote revocation is
// best effort; local state is cleared regardless. Disconnecting an already
// disconnected integration is not an error.
func (m *Manager) Disconnect(ctx context.Context, userID, providerName string) error {
	if userID == "" || providerName == "" {
		return errors.New("user id and provider are required")
	}
	rec, err := m.store.Get(ctx, userID, providerName)
	if err != nil && !errors.Is(err, integration.ErrNotFound) {
		return err
	}
	if rec != nil && rec.Status == integration.StatusConnected {
		m.revokeRemote(ctx, rec)
	}
	if err := m.store.Disconnect(ctx, userID, providerName); err != nil {
		return err
	}
	slog.Info("integration disconnected", "user_id", userID, "provider", providerName)
	return nil
}

func (m *Manager) revokeRemote(ctx context.Context, rec *integration.Record) {
	client, ok := m.clients[rec.Provider]
	if !ok {
		return
	}
	// Revoking the refresh token kills the whole grant at the provider.
	ct := rec.RefreshTokenCiphertext
	if ct == "" {
		ct = rec.AccessTokenCiphertext
	}
	if ct == "" {
		return
	}
	token, err := m.cipher.Decrypt(ct)
	if err != nil {
		slog.Warn("skipping remote revocation, token unreadable", "user_id", rec.UserID, "provider", rec.Provider, "err", err)
		return
	}
	if err := client.Revoke(ctx, token); err != nil {
		slog.Warn("remote revocation failed", "user_id", rec.UserID, "provider", rec.Provider, "err", err)
	}
}

// GetStatus reports the integration's state without touching the provider or
// mutating the record.
func (m *Manager) GetStatus(ctx context.Context, userID, providerName string) (*Status, error) {
	rec, err := m.store.Get(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			return &Status{Provider: providerName}, nil
		}
		return nil, err
	}
	return statusOf(rec), nil
}

func statusOf(rec *integration.Record) *Status {
	s := &Status{
		Provider:  rec.Provider,
		Connected: rec.Status == integration.StatusConnected,
		UpdatedAt: rec.UpdatedAt,
	}
	switch rec.Status {
	case integration.StatusConnected:
		s.Scopes = rec.Scopes
		s.TokenExpiresAt = rec.TokenExpiresAt
	case integration.StatusError:
		s.RequiresReauth = true
	}
	return s
}
