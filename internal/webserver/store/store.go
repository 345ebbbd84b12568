// Package store is a WAL-mode SQLite datastore backing the supervisor's
// own small HTTP surface: a persisted device identity and a log of start
// events, opened with WAL journaling, synchronous = NORMAL, and a
// single-connection pool.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// DB is a WAL-mode SQLite-backed datastore. It is safe for concurrent use.
type DB struct {
	db *sql.DB
}

const ddl = `
CREATE TABLE IF NOT EXISTS device_identity (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    device_id  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS start_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TEXT NOT NULL
);
`

// Open opens (or creates) the SQLite database at path, enables WAL journal
// mode, and applies the schema. Passing ":memory:" is suitable for tests.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	// A single writer connection avoids "database is locked" errors.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: set synchronous = NORMAL: %w", err)
	}
	if _, err := sqlDB.Exec(ddl); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &DB{db: sqlDB}, nil
}

// DeviceID returns the persisted device identifier, generating and storing
// a fresh random one on first call so the identifier is stable across
// restarts rather than re-randomized every run.
func (d *DB) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx, `SELECT device_id FROM device_identity WHERE id = 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("store: read device id: %w", err)
	}

	id = uuid.NewString()
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO device_identity (id, device_id) VALUES (1, ?)`, id); err != nil {
		return "", fmt.Errorf("store: persist device id: %w", err)
	}
	return id, nil
}

// RecordStart appends a start event with timestamp t.
func (d *DB) RecordStart(ctx context.Context, t time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO start_events (started_at) VALUES (?)`, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: record start: %w", err)
	}
	return nil
}

// StartCount returns how many start events have been recorded, useful for
// diagnosing unexpectedly frequent supervisor restarts.
func (d *DB) StartCount(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM start_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count starts: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
