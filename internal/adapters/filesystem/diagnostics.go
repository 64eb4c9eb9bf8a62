package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/example/ispwatch/internal/ports/secondary"
)

var unsafeLabel = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// DiagnosticsDir implements secondary.DiagnosticsSink by writing HTML and PNG
// captures into a directory.
type DiagnosticsDir struct {
	dir string
	now func() time.Time
}

// NewDiagnosticsDir creates a sink rooted at dir. The directory is created on
// first save.
func NewDiagnosticsDir(dir string) *DiagnosticsDir {
	return &DiagnosticsDir{dir: dir, now: time.Now}
}

// Save writes <stamp>-<label>.html and, if present, <stamp>-<label>.png. It
// returns the common path prefix.
func (d *DiagnosticsDir) Save(ctx context.Context, label string, snap *secondary.PageSnapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("nothing to capture for %q", label)
	}
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create diagnostics directory: %w", err)
	}

	at := snap.CapturedAt
	if at.IsZero() {
		at = d.now()
	}
	base := filepath.Join(d.dir, fmt.Sprintf("%s-%s", at.UTC().Format("20060102T150405.000Z"), unsafeLabel.ReplaceAllString(label, "_")))

	page := fmt.Sprintf("<!-- url: %s -->\n<!-- title: %s -->\n%s", snap.URL, snap.Title, snap.HTML)
	if err := os.WriteFile(base+".html", []byte(page), 0o600); err != nil {
		return "", fmt.Errorf("failed to write page capture: %w", err)
	}
	if len(snap.Screenshot) > 0 {
		if err := os.WriteFile(base+".png", snap.Screenshot, 0o600); err != nil {
			return "", fmt.Errorf("failed to write screenshot: %w", err)
		}
	}
	return base, nil
}

// Ensure DiagnosticsDir implements the interface
var _ secondary.DiagnosticsSink = (*DiagnosticsDir)(nil)
