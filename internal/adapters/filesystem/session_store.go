// Package filesystem contains filesystem-based adapter implementations.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/ispwatch/internal/ports/secondary"
)

// SessionVersion is the artifact format this build reads and writes.
const SessionVersion = 1

// SessionStore implements secondary.SessionStore as a JSON file.
type SessionStore struct {
	path string
}

// NewSessionStore creates a session store at path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Path returns the artifact location.
func (s *SessionStore) Path() string {
	return s.path
}

// Load reads the artifact. A missing file is ErrNoSession; an unreadable or
// foreign-version file is ErrSessionIncompatible.
func (s *SessionStore) Load(ctx context.Context) (*secondary.SessionArtifact, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, secondary.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var artifact secondary.SessionArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: %v", secondary.ErrSessionIncompatible, err)
	}
	if artifact.Version != SessionVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", secondary.ErrSessionIncompatible, artifact.Version, SessionVersion)
	}
	return &artifact, nil
}

// Save writes the artifact through a temp file and rename, mode 0600.
func (s *SessionStore) Save(ctx context.Context, artifact *secondary.SessionArtifact) error {
	if artifact == nil {
		return fmt.Errorf("session artifact must not be nil")
	}
	out := *artifact
	out.Version = SessionVersion

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o600)
}

// Invalidate removes the artifact.
func (s *SessionStore) Invalidate(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Ensure SessionStore implements the interface
var _ secondary.SessionStore = (*SessionStore)(nil)
