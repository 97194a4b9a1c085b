// Package db persists pdflow state in a project-local SQLite database:
// the version manifest (which runs produced which versions) and the async
// job ledger. Directory mtimes remain a discovery fallback, but the
// manifest is authoritative once a run has been recorded.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the project database.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := conn.ExecContext(pctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := bootstrap(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DB{conn: conn, path: path}, nil
}

// OpenInMemory opens a fresh in-memory database, used by tests.
func OpenInMemory(ctx context.Context) (*DB, error) {
	return Open(ctx, ":memory:")
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

func bootstrap(ctx context.Context, conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS versions (
  design     TEXT NOT NULL,
  tech       TEXT NOT NULL,
  kind       TEXT NOT NULL,
  version    TEXT NOT NULL,
  stage      TEXT NOT NULL,
  status     TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (design, tech, kind, version)
);`,
		`CREATE INDEX IF NOT EXISTS idx_versions_lookup
  ON versions(design, tech, kind, updated_at);`,
		`CREATE TABLE IF NOT EXISTS jobs (
  id           TEXT PRIMARY KEY,
  stage        TEXT NOT NULL,
  design       TEXT NOT NULL,
  tech         TEXT NOT NULL,
  version      TEXT,
  status       TEXT NOT NULL,
  error        TEXT,
  log_path     TEXT,
  script_path  TEXT,
  created_at   TEXT NOT NULL,
  started_at   TEXT,
  completed_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_design
  ON jobs(design, tech, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
