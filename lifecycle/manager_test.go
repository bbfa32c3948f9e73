package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Seann-Moser/integrations/integration"
	"github.com/Seann-Moser/integrations/oauth/provider"
	"github.com/Seann-Moser/integrations/secrets"
)

func newTestCipher(t *testing.T) *secrets.Cipher {
	t.Helper()
	key := make([]byte, chacha20poly1305.KeySize)
	c, err := secrets.NewCipher(map[string][]byte{"k1": key}, "k1")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func newTestManager(t *testing.T, clients map[string]provider.Client) (*Manager, integration.Store, *secrets.Cipher) {
	t.Helper()
	store := integration.NewMemoryStore()
	cipher := newTestCipher(t)
	if clients == nil {
		clients = map[string]provider.Client{"google": &provider.MockClient{}}
	}
	return NewManager(store, cipher, clients), store, cipher
}

func TestManager_ConnectEncryptsAndStores(t *testing.T) {
	m, store, cipher := newTestManager(t, nil)
	status, err := m.Connect(context.Background(), "u1", ConnectInput{
		Provider:       "google",
		ProviderUserID: "sub-1",
		GrantedScopes:  []string{"calendar.readonly"},
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		ExpiresIn:      3600,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !status.Connected {
		t.Error("expected connected status")
	}
	if len(status.Scopes) != 1 || status.Scopes[0] != "calendar.readonly" {
		t.Errorf("unexpected scopes %v", status.Scopes)
	}

	rec, err := store.Get(context.Background(), "u1", "google")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.AccessTokenCiphertext == "access-1" || rec.RefreshTokenCiphertext == "refresh-1" {
		t.Error("token material stored in plaintext")
	}
	if got, _ := cipher.Decrypt(rec.AccessTokenCiphertext); got != "access-1" {
		t.Errorf("access token round trip failed: %q", got)
	}
	if got, _ := cipher.Decrypt(rec.RefreshTokenCiphertext); got != "refresh-1" {
		t.Errorf("refresh token round trip failed: %q", got)
	}
	until := time.Until(rec.TokenExpiresAt)
	if until < 55*time.Minute || until > 61*time.Minute {
		t.Errorf("expiry not near one hour out: %v", rec.TokenExpiresAt)
	}
}

func TestManager_ConnectValidation(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	tests := []struct {
		name string
		in   ConnectInput
	}{
		{"missing provider", ConnectInput{AccessToken: "a"}},
		{"unknown provider", ConnectInput{Provider: "nope", AccessToken: "a"}},
		{"missing access token", ConnectInput{Provider: "google"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Connect(context.Background(), "u1", tt.in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if _, err := m.Connect(context.Background(), "", ConnectInput{Provider: "google", AccessToken: "a"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty user id, got %v", err)
	}
}

func TestManager_ConnectWithoutExpiryStoresZero(t *testing.T) {
	m, store, _ := newTestManager(t, nil)
	if _, err := m.Connect(context.Background(), "u1", ConnectInput{Provider: "google", AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	rec, _ := store.Get(context.Background(), "u1", "google")
	if !rec.TokenExpiresAt.IsZero() {
		t.Errorf("expected zero expiry when provider gave none, got %v", rec.TokenExpiresAt)
	}
}

func TestManager_ReconnectClearsError(t *testing.T) {
	m, store, _ := newTestManager(t, nil)
	ctx := context.Background()
	if _, err := m.Connect(ctx, "u1", ConnectInput{Provider: "google", AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 3600}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := store.MarkError(ctx, "u1", "google", "refresh token rejected"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	status, err := m.Connect(ctx, "u1", ConnectInput{Provider: "google", AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600})
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !status.Connected || status.RequiresReauth {
		t.Errorf("reconnect did not clear error state: %+v", status)
	}
	rec, _ := store.Get(ctx, "u1", "google")
	if rec.Status != integration.StatusConnected || rec.ErrorReason != "" {
		t.Errorf("expected clean connected record, got %s (%s)", rec.Status, rec.ErrorReason)
	}
}

func TestManager_DisconnectRevokesRemotely(t *testing.T) {
	var revoked string
	clients := map[string]provider.Client{
		"google": &provider.MockClient{
			RevokeFunc: func(ctx context.Context, token string) error {
				revoked = token
				return nil
			},
		},
	}
	m, store, _ := newTestManager(t, clients)
	ctx := context.Background()
	if _, err := m.Connect(ctx, "u1", ConnectInput{Provider: "google", AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 3600}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Disconnect(ctx, "u1", "google"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if revoked != "r1" {
		t.Errorf("expected refresh token revoked, got %q", revoked)
	}
	rec, _ := store.Get(ctx, "u1", "google")
	if rec.Status != integration.StatusDisconnected || rec.AccessTokenCiphertext != "" {
		t.Errorf("local state not cleared: %+v", rec)
	}
}

func TestManager_DisconnectSucceedsWhenRevocationFails(t *testing.T) {
	clients := map[string]provider.Client{
		"google": &provider.MockClient{
			RevokeFunc: func(ctx context.Context, token string) error {
				return &provider.Error{Kind: provider.KindTransient}
			},
		},
	}
	m, store, _ := newTestManager(t, clients)
	ctx := context.Background()
	if _, err := m.Connect(ctx, "u1", ConnectInput{Provider: "google", AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Disconnect(ctx, "u1", "google"); err != nil {
		t.Fatalf("Disconnect must succeed despite revocation failure: %v", err)
	}
	rec, _ := store.Get(ctx, "u1", "google")
	if rec.Status != integration.StatusDisconnected {
		t.Errorf("expected disconnected, got %s", rec.Status)
	}
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	if err := m.Disconnect(ctx, "u1", "google"); err != nil {
		t.Errorf("disconnect of never-connected integration: %v", err)
	}
	if _, err := m.Connect(ctx, "u1", ConnectInput{Provider: "google", AccessToken: "a1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Disconnect(ctx, "u1", "google"); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}
	if err := m.Disconnect(ctx, "u1", "google"); err != nil {
		t.Errorf("second disconnect: %v", err)
	}
}

func TestManager_GetStatus(t *testing.T) {
	m, store, _ := newTestManager(t, nil)
	ctx := context.Background()

	status, err := m.GetStatus(ctx, "u1", "google")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Connected || status.RequiresReauth {
		t.Errorf("expected plain disconnected status, got %+v", status)
	}

	if _, err := m.Connect(ctx, "u1", ConnectInput{Provider: "google", AccessToken: "a1", RefreshToken: "r1", GrantedScopes: []string{"s1"}, ExpiresIn: 3600}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	status, err = m.GetStatus(ctx, "u1", "google")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.Connected || len(status.Scopes) != 1 || status.TokenExpiresAt.IsZero() {
		t.Errorf("unexpected connected status %+v", status)
	}

	if err := store.MarkError(ctx, "u1", "google", "refresh token rejected"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	status, err = m.GetStatus(ctx, "u1", "google")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Connected || !status.RequiresReauth {
		t.Errorf("expected reauth-required status, got %+v", status)
	}
}
