package secondary

import (
	"context"
	"time"
)

// SessionStore defines the secondary port for the persisted portal session.
type SessionStore interface {
	// Load returns the saved artifact, ErrNoSession, or ErrSessionIncompatible.
	Load(ctx context.Context) (*SessionArtifact, error)

	// Save atomically replaces the saved artifact.
	Save(ctx context.Context, artifact *SessionArtifact) error

	// Invalidate discards the saved artifact. Missing is not an error.
	Invalidate(ctx context.Context) error
}

// SessionArtifact is the versioned, serialized session.
type SessionArtifact struct {
	Version   int         `json:"version"`
	SavedAt   time.Time   `json:"saved_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Portal    string      `json:"portal"`
	Data      SessionData `json:"data"`
}

// Expired reports whether the artifact's expiry hint has passed.
func (a *SessionArtifact) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// DiagnosticsSink defines the secondary port for saving page captures.
type DiagnosticsSink interface {
	// Save writes snap under a name derived from label and returns where it went.
	Save(ctx context.Context, label string, snap *PageSnapshot) (string, error)
}
