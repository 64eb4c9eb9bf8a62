package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	corecomplaint "github.com/example/ispwatch/internal/core/complaint"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// ComplaintRepository implements secondary.ComplaintRepository with SQLite.
type ComplaintRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewComplaintRepository creates a new SQLite complaint repository.
func NewComplaintRepository(db *sql.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db, now: time.Now}
}

const complaintColumns = "id, period, status, confirmation_ref, complaint_text, failure_reason, created_at, updated_at"

// Insert persists a new complaint and its evidence rows in one transaction.
// The record must have Status pre-populated by the service layer.
func (r *ComplaintRepository) Insert(ctx context.Context, c *secondary.ComplaintRecord) (int64, error) {
	if c.Period == "" {
		return 0, fmt.Errorf("complaint Period must be pre-populated by service layer")
	}
	if c.Status == "" {
		return 0, fmt.Errorf("complaint Status must be pre-populated by service layer")
	}

	created := c.CreatedAt
	if created.IsZero() {
		created = r.now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("insert complaint", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO complaint_records (period, status, confirmation_ref, complaint_text, failure_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Period, c.Status, nullString(c.ConfirmationRef), c.ComplaintText, nullString(c.FailureReason),
		formatTime(created), formatTime(created),
	)
	if err != nil {
		return 0, storeErr("insert complaint", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("insert complaint", err)
	}

	for _, mid := range c.MeasurementIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO complaint_evidence (complaint_id, measurement_id) VALUES (?, ?)", id, mid,
		); err != nil {
			return 0, storeErr("insert complaint evidence", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr("insert complaint", err)
	}
	return id, nil
}

// GetByID retrieves a complaint with its evidence.
func (r *ComplaintRepository) GetByID(ctx context.Context, id int64) (*secondary.ComplaintRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+complaintColumns+" FROM complaint_records WHERE id = ?", id)
	c, err := scanComplaint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("complaint %d %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get complaint", err)
	}

	if err := r.loadEvidence(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateStatus moves a PENDING complaint to a terminal status. The update is
// conditional on the row still being PENDING, so terminal rows never change.
func (r *ComplaintRepository) UpdateStatus(ctx context.Context, id int64, u secondary.ComplaintStatusUpdate) error {
	if !corecomplaint.IsTerminal(corecomplaint.Status(u.Status)) {
		return fmt.Errorf("complaint %d cannot be updated to non-terminal status %q", id, u.Status)
	}
	updated := u.UpdatedAt
	if updated.IsZero() {
		updated = r.now()
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE complaint_records
		 SET status = ?, confirmation_ref = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		u.Status, nullString(u.ConfirmationRef), nullString(u.FailureReason), formatTime(updated),
		id, string(corecomplaint.StatusPending),
	)
	if err != nil {
		return storeErr("update complaint status", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return storeErr("update complaint status", err)
	}
	if rowsAffected == 0 {
		var status string
		err := r.db.QueryRowContext(ctx, "SELECT status FROM complaint_records WHERE id = ?", id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("complaint %d %w", id, secondary.ErrNotFound)
		}
		if err != nil {
			return storeErr("update complaint status", err)
		}
		return fmt.Errorf("complaint %d is %s and can no longer change", id, status)
	}
	return nil
}

// HasFiled reports whether period already has a FILED complaint.
func (r *ComplaintRepository) HasFiled(ctx context.Context, period string) (bool, error) {
	return hasFiled(ctx, r.db, period)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func hasFiled(ctx context.Context, q queryer, period string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM complaint_records WHERE period = ? AND status = ?)",
		period, string(corecomplaint.StatusFiled),
	).Scan(&exists)
	if err != nil {
		return false, storeErr("check filed complaint", err)
	}
	return exists, nil
}

// LatestOpen returns the most recent PENDING complaint for period, or nil.
func (r *ComplaintRepository) LatestOpen(ctx context.Context, period string) (*secondary.ComplaintRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+complaintColumns+" FROM complaint_records WHERE period = ? AND status = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		period, string(corecomplaint.StatusPending),
	)
	c, err := scanComplaint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get open complaint", err)
	}
	if err := r.loadEvidence(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List retrieves complaints matching the given filters, newest first.
func (r *ComplaintRepository) List(ctx context.Context, filters secondary.ComplaintFilters) ([]*secondary.ComplaintRecord, error) {
	query := "SELECT " + complaintColumns + " FROM complaint_records WHERE 1=1"
	args := []any{}

	if filters.Period != "" {
		query += " AND period = ?"
		args = append(args, filters.Period)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list complaints", err)
	}

	var complaints []*secondary.ComplaintRecord
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			rows.Close()
			return nil, storeErr("scan complaint", err)
		}
		complaints = append(complaints, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storeErr("iterate complaints", err)
	}
	rows.Close()

	for _, c := range complaints {
		if err := r.loadEvidence(ctx, c); err != nil {
			return nil, err
		}
	}
	return complaints, nil
}

func (r *ComplaintRepository) loadEvidence(ctx context.Context, c *secondary.ComplaintRecord) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT measurement_id FROM complaint_evidence WHERE complaint_id = ? ORDER BY measurement_id", c.ID)
	if err != nil {
		return storeErr("load complaint evidence", err)
	}
	defer rows.Close()

	c.MeasurementIDs = nil
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return storeErr("scan complaint evidence", err)
		}
		c.MeasurementIDs = append(c.MeasurementIDs, id)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(s rowScanner) (*secondary.ComplaintRecord, error) {
	var (
		c                    secondary.ComplaintRecord
		ref, reason          sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&c.ID, &c.Period, &c.Status, &ref, &c.ComplaintText, &reason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.ConfirmationRef = ref.String
	c.FailureReason = reason.String

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Ensure ComplaintRepository implements the interface
var _ secondary.ComplaintRepository = (*ComplaintRepository)(nil)
