// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which the CLI drives the application.
package primary

import (
	"context"
	"time"

	"github.com/example/ispwatch/internal/core/outcome"
)

// Orchestrator defines the primary port for the two scheduled flows and the
// session maintenance commands.
type Orchestrator interface {
	// RunMeasurement measures once, records, evaluates the latest sample and
	// files when it is below threshold.
	RunMeasurement(ctx context.Context, opts RunOptions) (*RunOutcome, error)

	// RunReport evaluates a whole period (optionally pulled from the remote
	// measurement host) and files once for it.
	RunReport(ctx context.Context, opts RunOptions) (*RunOutcome, error)

	// SaveSession opens a visible browser so the operator can sign in and
	// clear the challenge, then persists the session.
	SaveSession(ctx context.Context) error

	// ClearSession discards the saved session.
	ClearSession(ctx context.Context) error
}

// RunOptions carries the operator's flags for a run.
type RunOptions struct {
	DryRun      bool
	ShowBrowser bool
	TextOnly    bool // with DryRun: print the complaint, never launch a browser
	MeasureOnly bool
	EmailOnly   bool
	NoEmail     bool
	MinFailures int    // 0 means use configuration
	Date        string // report period: "", "today", "yesterday" or YYYY-MM-DD
}

// RunOutcome is what a run did.
type RunOutcome struct {
	Kind            outcome.Kind
	Period          string
	Verdict         string
	Summary         string // evaluation summary line
	Message         string // why the run stopped, when it stopped early
	ComplaintID     int64
	ConfirmationRef string
	ComplaintText   string
	Measurement     *Measurement
}

// ExitCode maps the outcome to the process exit code.
func (o *RunOutcome) ExitCode() int {
	if o == nil {
		return outcome.ExitError
	}
	return outcome.ExitCode(o.Kind)
}

// HistoryService defines the primary port for reading recorded history.
type HistoryService interface {
	RecentMeasurements(ctx context.Context, limit int) ([]*Measurement, error)
	RecentComplaints(ctx context.Context, limit int) ([]*Complaint, error)
}

// ExportService defines the primary port for the read-only period export the
// remote sync client consumes.
type ExportService interface {
	ExportPeriod(ctx context.Context, date string) ([]byte, error)
}

// Measurement is a recorded measurement with its evaluation against the contract.
type Measurement struct {
	ID             int64
	TakenAt        time.Time
	DownloadMbps   float64
	UploadMbps     float64
	LatencyMs      float64
	Server         string
	Origin         string
	PercentOfPlan  float64
	BelowThreshold bool
}

// Complaint is a recorded filing attempt.
type Complaint struct {
	ID              int64
	Period          string
	Status          string
	ConfirmationRef string
	FailureReason   string
	EvidenceCount   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
