// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/ispwatch/internal/db"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// MeasurementRepository implements secondary.MeasurementRepository with SQLite.
type MeasurementRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewMeasurementRepository creates a new SQLite measurement repository.
func NewMeasurementRepository(db *sql.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db, now: time.Now}
}

const measurementColumns = "id, taken_at, download_mbps, upload_mbps, latency_ms, server, raw, origin"

// Insert persists a new measurement and returns its ID.
func (r *MeasurementRepository) Insert(ctx context.Context, m *secondary.MeasurementRecord) (int64, error) {
	if m.TakenAt.IsZero() {
		return 0, fmt.Errorf("measurement TakenAt must be set")
	}
	origin := m.Origin
	if origin == "" {
		origin = "local"
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO measurements (taken_at, download_mbps, upload_mbps, latency_ms, server, raw, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(m.TakenAt), m.DownloadMbps, m.UploadMbps, m.LatencyMs, m.Server, m.Raw, origin, formatTime(r.now()),
	)
	if err != nil {
		return 0, storeErr("insert measurement", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("insert measurement", err)
	}
	return id, nil
}

// Merge inserts measurements not already present (by taken_at and server)
// in a single transaction.
func (r *MeasurementRepository) Merge(ctx context.Context, ms []*secondary.MeasurementRecord) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("merge measurements", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO measurements (taken_at, download_mbps, upload_mbps, latency_ms, server, raw, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(taken_at, server) DO NOTHING`)
	if err != nil {
		return 0, storeErr("merge measurements", err)
	}
	defer stmt.Close()

	now := formatTime(r.now())
	inserted := 0
	for _, m := range ms {
		origin := m.Origin
		if origin == "" {
			origin = "remote"
		}
		res, err := stmt.ExecContext(ctx, formatTime(m.TakenAt), m.DownloadMbps, m.UploadMbps, m.LatencyMs, m.Server, m.Raw, origin, now)
		if err != nil {
			return 0, storeErr("merge measurements", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr("merge measurements", err)
	}
	return inserted, nil
}

// Query returns measurements in [from, to), oldest first.
func (r *MeasurementRepository) Query(ctx context.Context, from, to time.Time) ([]*secondary.MeasurementRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+measurementColumns+" FROM measurements WHERE taken_at >= ? AND taken_at < ? ORDER BY taken_at ASC, id ASC",
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, storeErr("query measurements", err)
	}
	defer rows.Close()

	return scanMeasurements(rows)
}

// Recent returns the newest measurements, newest first.
func (r *MeasurementRepository) Recent(ctx context.Context, limit int) ([]*secondary.MeasurementRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+measurementColumns+" FROM measurements ORDER BY taken_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, storeErr("list measurements", err)
	}
	defer rows.Close()

	return scanMeasurements(rows)
}

func scanMeasurements(rows *sql.Rows) ([]*secondary.MeasurementRecord, error) {
	var out []*secondary.MeasurementRecord
	for rows.Next() {
		var (
			m       secondary.MeasurementRecord
			takenAt string
		)
		if err := rows.Scan(&m.ID, &takenAt, &m.DownloadMbps, &m.UploadMbps, &m.LatencyMs, &m.Server, &m.Raw, &m.Origin); err != nil {
			return nil, storeErr("scan measurement", err)
		}
		t, err := parseTime(takenAt)
		if err != nil {
			return nil, fmt.Errorf("measurement %d: %w", m.ID, err)
		}
		m.TakenAt = t
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate measurements", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(db.TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(db.TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func storeErr(op string, err error) error {
	return &secondary.StoreError{Op: op, Err: err}
}

// Ensure MeasurementRepository implements the interface
var _ secondary.MeasurementRepository = (*MeasurementRepository)(nil)
