package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(tx *sql.Tx) error
}

const schemaVersionSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(SchemaSQL)
			return err
		},
	},
	{
		Version: 2,
		Name:    "import_legacy_speed_tests",
		Up:      migrationV2,
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// legacyTimeLayouts are the naive local-time formats written by the earlier
// speed_tests table.
var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// migrationV2 copies rows from a pre-existing speed_tests table (same file,
// earlier tool) into measurements. Rows that already exist are skipped.
func migrationV2(tx *sql.Tx) error {
	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='speed_tests'").Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	rows, err := tx.Query("SELECT timestamp, download_mbps, upload_mbps, ping_ms, server FROM speed_tests ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to read speed_tests: %w", err)
	}

	type legacyRow struct {
		takenAt                time.Time
		download, upload, ping float64
		server                 string
	}
	var pending []legacyRow
	for rows.Next() {
		var ts, server string
		var r legacyRow
		if err := rows.Scan(&ts, &r.download, &r.upload, &r.ping, &server); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan speed_tests row: %w", err)
		}
		t, ok := parseLegacyTime(ts)
		if !ok {
			continue
		}
		r.takenAt = t
		r.server = server
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	now := time.Now().UTC().Format(TimeLayout)
	for _, r := range pending {
		_, err := tx.Exec(
			`INSERT INTO measurements (taken_at, download_mbps, upload_mbps, latency_ms, server, origin, created_at)
			 VALUES (?, ?, ?, ?, ?, 'legacy', ?)
			 ON CONFLICT(taken_at, server) DO NOTHING`,
			r.takenAt.UTC().Format(TimeLayout), r.download, r.upload, r.ping, r.server, now,
		)
		if err != nil {
			return fmt.Errorf("failed to import legacy measurement: %w", err)
		}
	}
	return nil
}

func parseLegacyTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
