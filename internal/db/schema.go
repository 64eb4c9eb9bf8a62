package db

import (
	"database/sql"
	"fmt"
)

// SchemaSQL is the complete schema for a fresh ispwatch history database.
// It reflects the state after all migrations.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. Repository tests
// open an in-memory database from GetSchemaSQL() instead of declaring their own
// tables, so a column referenced by repository code but missing here fails
// immediately with "no such column".
//
// Timestamps are stored as fixed-width UTC text (TimeLayout) so that lexical
// order equals chronological order and range scans can use the indexes.
const SchemaSQL = `
-- Measurements (one row per completed throughput test; immutable)
CREATE TABLE IF NOT EXISTS measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at TEXT NOT NULL,
	download_mbps REAL NOT NULL CHECK(download_mbps >= 0),
	upload_mbps REAL NOT NULL CHECK(upload_mbps >= 0),
	latency_ms REAL NOT NULL CHECK(latency_ms >= 0),
	server TEXT NOT NULL DEFAULT '',
	raw BLOB,
	origin TEXT NOT NULL DEFAULT 'local',
	created_at TEXT NOT NULL,
	UNIQUE(taken_at, server)
);

CREATE INDEX IF NOT EXISTS idx_measurements_taken_at ON measurements(taken_at);

-- Complaint records (one row per filing attempt)
CREATE TABLE IF NOT EXISTS complaint_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	period TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('PENDING', 'FILED', 'FAILED', 'SKIPPED_DUPLICATE')) DEFAULT 'PENDING',
	confirmation_ref TEXT,
	complaint_text TEXT NOT NULL DEFAULT '',
	failure_reason TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_complaint_records_period ON complaint_records(period, status);

-- At most one FILED complaint per qualifying period
CREATE UNIQUE INDEX IF NOT EXISTS idx_complaint_records_one_filed
	ON complaint_records(period) WHERE status = 'FILED';

-- Measurements cited as evidence by a complaint
CREATE TABLE IF NOT EXISTS complaint_evidence (
	complaint_id INTEGER NOT NULL,
	measurement_id INTEGER NOT NULL,
	PRIMARY KEY (complaint_id, measurement_id),
	FOREIGN KEY (complaint_id) REFERENCES complaint_records(id) ON DELETE CASCADE,
	FOREIGN KEY (measurement_id) REFERENCES measurements(id)
);

-- Run locks (cross-process exclusion for filing runs)
CREATE TABLE IF NOT EXISTS run_locks (
	name TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	pid INTEGER NOT NULL,
	host TEXT NOT NULL,
	period TEXT NOT NULL,
	acquired_at TEXT NOT NULL
);
`

// TimeLayout is the on-disk timestamp format for every TEXT time column.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// InitSchema creates the schema on a fresh database and runs any pending
// migrations on an existing one.
func InitSchema(conn *sql.DB) error {
	var tableCount int
	err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount == 0 {
		if _, err := conn.Exec(SchemaSQL); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		if _, err := conn.Exec(schemaVersionSQL); err != nil {
			return fmt.Errorf("failed to create schema_version table: %w", err)
		}
		// The base schema already contains everything migration 1 describes.
		if _, err := conn.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return err
		}
	}

	return RunMigrations(conn)
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
