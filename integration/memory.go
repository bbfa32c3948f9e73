package integration

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = &MemoryStore{}

// MemoryStore is an in-memory Store for tests and single-process development.
// It keeps the same compare-and-write semantics as the MongoDB store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func storeKey(userID, provider string) string {
	return userID + "/" + provider
}

func cloneRecord(rec *Record) *Record {
	cp := *rec
	cp.Scopes = slices.Clone(rec.Scopes)
	return &cp
}

// Get fetches one (user, provider) record.
func (s *MemoryStore) Get(ctx context.Context, userID, provider string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[storeKey(userID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// UpsertConnected writes a freshly granted connection.
func (s *MemoryStore) UpsertConnected(ctx context.Context, userID, provider string, in Connection) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(userID, provider)
	rec, ok := s.records[key]
	if !ok {
		now := nextVersion(time.Time{})
		rec = &Record{
			ID:        uuid.New().String(),
			UserID:    userID,
			Provider:  provider,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.records[key] = rec
	} else {
		rec.UpdatedAt = nextVersion(rec.UpdatedAt)
	}
	rec.Status = StatusConnected
	rec.ProviderUserID = in.ProviderUserID
	rec.Scopes = slices.Clone(in.Scopes)
	rec.AccessTokenCiphertext = in.AccessTokenCiphertext
	rec.RefreshTokenCiphertext = in.RefreshTokenCiphertext
	rec.TokenExpiresAt = in.ExpiresAt
	rec.ErrorReason = ""
	return cloneRecord(rec), nil
}

// UpdateTokens applies the refreshed pair only when the version still matches.
func (s *MemoryStore) UpdateTokens(ctx context.Context, userID, provider string, version time.Time, upd TokenUpdate) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[storeKey(userID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != StatusConnected || !rec.UpdatedAt.Equal(version) {
		return nil, ErrConflict
	}
	rec.AccessTokenCiphertext = upd.AccessTokenCiphertext
	if upd.RefreshTokenCiphertext != "" {
		rec.RefreshTokenCiphertext = upd.RefreshTokenCiphertext
	}
	rec.TokenExpiresAt = upd.ExpiresAt
	rec.UpdatedAt = nextVersion(rec.UpdatedAt)
	return cloneRecord(rec), nil
}

// MarkError flags the grant as terminally unusable.
func (s *MemoryStore) MarkError(ctx context.Context, userID, provider, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[storeKey(userID, provider)]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusError
	rec.ErrorReason = reason
	rec.UpdatedAt = nextVersion(rec.UpdatedAt)
	return nil
}

// Disconnect clears token material; missing records count as disconnected.
func (s *MemoryStore) Disconnect(ctx context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[storeKey(userID, provider)]
	if !ok {
		return nil
	}
	rec.Status = StatusDisconnected
	rec.ProviderUserID = ""
	rec.Scopes = nil
	rec.AccessTokenCiphertext = ""
	rec.RefreshTokenCiphertext = ""
	rec.TokenExpiresAt = time.Time{}
	rec.ErrorReason = ""
	rec.UpdatedAt = nextVersion(rec.UpdatedAt)
	return nil
}
