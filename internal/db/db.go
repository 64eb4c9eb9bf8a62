package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Options controls how the history database is opened.
type Options struct {
	// ReadOnly opens the file with mode=ro; the schema is neither created nor migrated.
	ReadOnly bool
	// BusyTimeoutMS bounds how long a writer waits on another process's lock.
	BusyTimeoutMS int
}

// DefaultBusyTimeoutMS is used when Options.BusyTimeoutMS is zero.
const DefaultBusyTimeoutMS = 5000

// Open opens (creating if needed) the sqlite history database at path and
// brings its schema up to date.
func Open(path string, opts Options) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if !opts.ReadOnly && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if opts.ReadOnly {
		return conn, nil
	}

	// Enable foreign keys
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if err := InitSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return conn, nil
}

// dsn builds the go-sqlite3 connection string. Immediate transactions make the
// run-lock check-and-insert take the write lock up front.
func dsn(path string, opts Options) string {
	busy := opts.BusyTimeoutMS
	if busy <= 0 {
		busy = DefaultBusyTimeoutMS
	}

	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(busy))
	q.Set("_txlock", "immediate")
	q.Set("_foreign_keys", "1")
	if opts.ReadOnly {
		q.Set("mode", "ro")
	}

	if path == ":memory:" {
		return "file::memory:?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}
