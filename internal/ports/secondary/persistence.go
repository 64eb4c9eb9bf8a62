// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"time"
)

// MeasurementRepository defines the secondary port for measurement persistence.
type MeasurementRepository interface {
	// Insert persists a new measurement and returns its assigned ID.
	Insert(ctx context.Context, m *MeasurementRecord) (int64, error)

	// Merge inserts measurements that are not yet stored, keyed on
	// (TakenAt, Server). It returns how many rows were new.
	Merge(ctx context.Context, ms []*MeasurementRecord) (int, error)

	// Query returns measurements with from <= TakenAt < to, oldest first.
	Query(ctx context.Context, from, to time.Time) ([]*MeasurementRecord, error)

	// Recent returns the newest measurements, newest first.
	Recent(ctx context.Context, limit int) ([]*MeasurementRecord, error)
}

// MeasurementRecord represents a measurement as stored in persistence.
type MeasurementRecord struct {
	ID           int64
	TakenAt      time.Time // UTC
	DownloadMbps float64
	UploadMbps   float64
	LatencyMs    float64
	Server       string
	Raw          []byte // utility output, kept verbatim
	Origin       string // "local", "legacy", or the remote host it was pulled from
}

// ComplaintRepository defines the secondary port for complaint persistence.
type ComplaintRepository interface {
	// Insert persists a new complaint with its cited measurements atomically
	// and returns its assigned ID.
	Insert(ctx context.Context, c *ComplaintRecord) (int64, error)

	// GetByID retrieves a complaint by its ID.
	GetByID(ctx context.Context, id int64) (*ComplaintRecord, error)

	// UpdateStatus moves a PENDING complaint to a terminal status.
	UpdateStatus(ctx context.Context, id int64, update ComplaintStatusUpdate) error

	// HasFiled reports whether period already has a FILED complaint.
	HasFiled(ctx context.Context, period string) (bool, error)

	// LatestOpen returns the most recent PENDING complaint for period, or nil.
	LatestOpen(ctx context.Context, period string) (*ComplaintRecord, error)

	// List retrieves complaints matching the given filters, newest first.
	List(ctx context.Context, filters ComplaintFilters) ([]*ComplaintRecord, error)
}

// ComplaintRecord represents a complaint attempt as stored in persistence.
type ComplaintRecord struct {
	ID              int64
	Period          string // YYYY-MM-DD
	Status          string
	ConfirmationRef string
	ComplaintText   string
	FailureReason   string
	MeasurementIDs  []int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ComplaintStatusUpdate carries the fields written on a status transition.
type ComplaintStatusUpdate struct {
	Status          string
	ConfirmationRef string
	FailureReason   string
	UpdatedAt       time.Time
}

// ComplaintFilters contains filter options for querying complaints.
type ComplaintFilters struct {
	Period string
	Status string
	Limit  int
}

// RunLockRepository defines the secondary port for cross-process run exclusion.
type RunLockRepository interface {
	// TryAcquire atomically checks the period and the lock row and, when
	// admitted, writes a lock owned by req.Token.
	TryAcquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error)

	// Release deletes the lock only if it is still owned by token.
	Release(ctx context.Context, name, token string) error

	// Get returns the current lock row, or nil.
	Get(ctx context.Context, name string) (*RunLockRecord, error)
}

// RunLockRecord represents a run lock as stored in persistence.
type RunLockRecord struct {
	Name       string
	Token      string
	PID        int
	Host       string
	Period     string
	AcquiredAt time.Time
}

// AcquireRequest describes the lock a run wants to take.
type AcquireRequest struct {
	Name       string
	Token      string
	PID        int
	Host       string
	Period     string
	Now        time.Time
	StaleAfter time.Duration
}

// AcquireResult reports what TryAcquire decided.
type AcquireResult struct {
	Admitted    bool
	Reason      string // runguard.DenyReason when not admitted
	Message     string
	Reclaimed   *RunLockRecord // stale lock that was removed, if any
	StaleReason string
}
