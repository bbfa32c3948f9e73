package integration

import (
	"context"
	"time"
)

// Store defines persistence for integration records. Every operation is
// keyed on the owning userID; there is no cross-user surface.
type Store interface {
	// Get fetches the record for one (user, provider) pair, or ErrNotFound.
	Get(ctx context.Context, userID, provider string) (*Record, error)

	// UpsertConnected writes a freshly granted connection. Exactly one record
	// exists per (user, provider); repeated consent callbacks overwrite it.
	UpsertConnected(ctx context.Context, userID, provider string, in Connection) (*Record, error)

	// UpdateTokens is an atomic compare-and-write keyed on the UpdatedAt
	// version read with the record. It returns ErrConflict when the record
	// advanced under the writer, so two refreshers never silently overwrite
	// each other's newer result.
	UpdateTokens(ctx context.Context, userID, provider string, version time.Time, upd TokenUpdate) (*Record, error)

	// MarkError flags the record's grant as terminally unusable.
	MarkError(ctx context.Context, userID, provider, reason string) error

	// Disconnect clears token material and scopes. Succeeds even when no
	// record exists.
	Disconnect(ctx context.Context, userID, provider string) error
}

// nextVersion returns a version timestamp strictly after prev. Store times
// are truncated to milliseconds so they survive a database round trip.
func nextVersion(prev time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}
