package integration

import (
	"context"
	"time"
)

// MockStore provides customizable hooks for testing Store behavior.
type MockStore struct {
	GetFunc             func(ctx context.Context, userID, provider string) (*Record, error)
	UpsertConnectedFunc func(ctx context.Context, userID, provider string, in Connection) (*Record, error)
	UpdateTokensFunc    func(ctx context.Context, userID, provider string, version time.Time, upd TokenUpdate) (*Record, error)
	MarkErrorFunc       func(ctx context.Context, userID, provider, reason string) error
	DisconnectFunc      func(ctx context.Context, userID, provider string) error
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)

// Get calls GetFunc if set, otherwise returns ErrNotFound
func (m *MockStore) Get(ctx context.Context, userID, provider string) (*Record, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID, provider)
	}
	return nil, ErrNotFound
}

// UpsertConnected calls UpsertConnectedFunc if set, otherwise returns nil, nil
func (m *MockStore) UpsertConnected(ctx context.Context, userID, provider string, in Connection) (*Record, error) {
	if m.UpsertConnectedFunc != nil {
		return m.UpsertConnectedFunc(ctx, userID, provider, in)
	}
	return nil, nil
}

// UpdateTokens calls UpdateTokensFunc if set, otherwise returns nil, nil
func (m *MockStore) UpdateTokens(ctx context.Context, userID, provider string, version time.Time, upd TokenUpdate) (*Record, error) {
	if m.UpdateTokensFunc != nil {
		return m.UpdateTokensFunc(ctx, userID, provider, version, upd)
	}
	return nil, nil
}

// MarkError calls MarkErrorFunc if set, otherwise returns nil
func (m *MockStore) MarkError(ctx context.Context, userID, provider, reason string) error {
	if m.MarkErrorFunc != nil {
		return m.MarkErrorFunc(ctx, userID, provider, reason)
	}
	return nil
}

// Disconnect calls DisconnectFunc if set, otherwise returns nil
func (m *MockStore) Disconnect(ctx context.Context, userID, provider string) error {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx, userID, provider)
	}
	return nil
}
