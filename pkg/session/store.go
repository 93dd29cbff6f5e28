package session

import (
	"context"
	"errors"
	"time"
)

// Store persists serialized sessions. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save writes one session, replacing any earlier copy.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load returns the session data, or (nil, nil) if the session is
	// missing or expired.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a session. Missing sessions are not an error.
	Delete(ctx context.Context, sessionID string) error

	// Touch moves the expiry of a stored session. Missing sessions are not
	// an error.
	Touch(ctx context.Context, sessionID string, expiresAt time.Time) error

	// SaveAll writes many sessions, atomically where the backend allows.
	SaveAll(ctx context.Context, sessions map[string]SessionData) error

	// Close releases the store's resources.
	Close() error
}

// SessionData is one serialized session and its expiry.
type SessionData struct {
	Data      []byte
	ExpiresAt time.Time
}

// ErrStoreClosed is returned by stores after Close.
var ErrStoreClosed = errors.New("session: store is closed")
