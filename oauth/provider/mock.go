package provider

import "context"

// MockClient provides customizable hooks for testing Client behavior.
type MockClient struct {
	RefreshFunc func(ctx context.Context, refreshToken string) (*Grant, error)
	RevokeFunc  func(ctx context.Context, token string) error
}

// Ensure MockClient implements Client
var _ Client = (*MockClient)(nil)

// Refresh calls RefreshFunc if set, otherwise returns an empty grant
func (m *MockClient) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return &Grant{}, nil
}

// Revoke calls RevokeFunc if set, otherwise returns nil
func (m *MockClient) Revoke(ctx context.Context, token string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, token)
	}
	return nil
}
