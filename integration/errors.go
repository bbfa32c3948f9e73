package integration

import "errors"

var (
	// ErrNotFound is returned by Store.Get when no record exists for the key.
	ErrNotFound = errors.New("integration not found")

	// ErrConflict is returned by Store.UpdateTokens when the record was
	// written by someone else since the version was read. Retried by the
	// refresh coordinator, never surfaced to callers.
	ErrConflict = errors.New("integration version conflict")

	// ErrNotConnected means no usable grant exists; the user must connect.
	ErrNotConnected = errors.New("integration not connected")

	// ErrReauthRequired means the grant was revoked or expired at the
	// provider; the user must reconnect.
	ErrReauthRequired = errors.New("integration requires reconnect")

	// ErrCannotRefresh means no refresh token is stored, so the access token
	// cannot be renewed without user interaction.
	ErrCannotRefresh = errors.New("integration has no refresh token")

	// ErrTemporarilyUnavailable covers provider or network failures the
	// caller may retry; the record is left untouched.
	ErrTemporarilyUnavailable = errors.New("provider temporarily unavailable")
)
