// Package store persists records. SQLite is the default backend; Graph
// writes the same records to Neo4j.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// SQLite stores records in a single SQLite file.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the database at path, switches it to WAL and
// migrates it. The pool is capped at one connection so writes serialize.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// 0 -> 1: posts
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS posts (
		  id          TEXT PRIMARY KEY,
		  source      TEXT NOT NULL,
		  author      TEXT,
		  text        TEXT,
		  created_utc TEXT,
		  url         TEXT,
		  keyword     TEXT,
		  score       INTEGER,
		  extras      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_posts_source_time
		ON posts(source, created_utc);

		CREATE INDEX IF NOT EXISTS idx_posts_keyword
		ON posts(keyword);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// 1 -> 2: run log
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id          TEXT PRIMARY KEY,
		  keyword     TEXT NOT NULL,
		  sources     TEXT NOT NULL,
		  affected    INTEGER NOT NULL,
		  started_at  TEXT NOT NULL,
		  finished_at TEXT NOT NULL,
		  error       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the schema version stored in the database.
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion records the schema version.
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d;", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
