// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() so tests run against the
// authoritative schema. Do not declare tables in test files; use setupTestDB()
// and the seed* helpers instead.
package sqlite_test

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/ispwatch/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedMeasurement inserts a measurement row directly and returns its ID.
func seedMeasurement(t *testing.T, conn *sql.DB, takenAt time.Time, down float64, server string) int64 {
	t.Helper()
	if server == "" {
		server = "Test ISP (Springfield)"
	}
	res, err := conn.Exec(
		`INSERT INTO measurements (taken_at, download_mbps, upload_mbps, latency_ms, server, origin, created_at)
		 VALUES (?, ?, 10, 20, ?, 'local', ?)`,
		takenAt.UTC().Format(db.TimeLayout), down, server, takenAt.UTC().Format(db.TimeLayout),
	)
	if err != nil {
		t.Fatalf("failed to seed measurement: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// seedComplaint inserts a complaint row directly and returns its ID.
func seedComplaint(t *testing.T, conn *sql.DB, period, status string) int64 {
	t.Helper()
	if period == "" {
		period = "2024-03-05"
	}
	if status == "" {
		status = "PENDING"
	}
	var ref any
	if status == "FILED" {
		ref = "REQ-" + period
	}
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC).Format(db.TimeLayout)
	res, err := conn.Exec(
		`INSERT INTO complaint_records (period, status, confirmation_ref, complaint_text, created_at, updated_at)
		 VALUES (?, ?, ?, 'slow', ?, ?)`,
		period, status, ref, now, now,
	)
	if err != nil {
		t.Fatalf("failed to seed complaint: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}
