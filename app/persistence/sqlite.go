package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a record violates a uniqueness constraint
var ErrDuplicate = errors.New("duplicate record")

// ErrFailureClosed is returned when a corrective action is added to a closed failure
var ErrFailureClosed = errors.New("failure report is closed")

// ErrPendingActions is returned when a failure is closed while its corrective actions are not all
// verified or cancelled
var ErrPendingActions = errors.New("corrective actions are not verified")

// errStopRetry marks errors which should not be retried
var errStopRetry = errors.New("stop retry")

// Retrier repeats a function until it succeeds or one of the terminal errors is returned
type Retrier interface {
	Do(ctx context.Context, fun func() error, errors ...error) error
}

// SQLiteStore implements persistence using SQLite
type SQLiteStore struct {
	db    *sqlx.DB
	path  string
	retry Retrier
}

// Option configures SQLiteStore
type Option func(s *SQLiteStore)

// WithRetry sets the retrier used for write transactions hitting a locked database
func WithRetry(r Retrier) Option {
	return func(s *SQLiteStore) { s.retry = r }
}

// NewSQLiteStore opens (creating if needed) the database file and initializes the schema
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// single underlying handle, all access is serialized through it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to apply %q: %w (also failed to close db: %v)", p, err, closeErr)
			}
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:    db,
		path:  dbPath,
		retry: repeater.New(&strategy.Backoff{Repeats: 5, Duration: 50 * time.Millisecond, Factor: 2, Jitter: true}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Initialize(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Printf("[DEBUG] sqlite store opened at %s", dbPath)
	return s, nil
}

// Initialize creates the database schema
func (s *SQLiteStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE,
			role TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS failure_modes (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS failure_causes (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			tag TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			criticality TEXT NOT NULL DEFAULT 'medium',
			pm_schedule TEXT NOT NULL DEFAULT '',
			in_service_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS failure_reports (
			id TEXT PRIMARY KEY,
			number INTEGER NOT NULL UNIQUE,
			asset_id TEXT NOT NULL REFERENCES assets(id),
			reported_by TEXT REFERENCES users(id),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			failure_mode TEXT REFERENCES failure_modes(code),
			failure_cause TEXT REFERENCES failure_causes(code),
			root_cause TEXT NOT NULL DEFAULT '',
			downtime_minutes INTEGER NOT NULL DEFAULT 0,
			occurred_at INTEGER NOT NULL,
			closed_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS work_orders (
			id TEXT PRIMARY KEY,
			number INTEGER NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			asset_id TEXT NOT NULL REFERENCES assets(id),
			failure_id TEXT REFERENCES failure_reports(id),
			assignee_id TEXT REFERENCES users(id),
			requested_by TEXT REFERENCES users(id),
			resolution TEXT NOT NULL DEFAULT '',
			labor_hours REAL NOT NULL DEFAULT 0,
			due_at INTEGER,
			started_at INTEGER,
			completed_at INTEGER,
			verified_at INTEGER,
			closed_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS work_order_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_order_id TEXT NOT NULL REFERENCES work_orders(id) ON DELETE CASCADE,
			from_status TEXT NOT NULL DEFAULT '',
			to_status TEXT NOT NULL,
			actor_id TEXT REFERENCES users(id),
			note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS corrective_actions (
			id TEXT PRIMARY KEY,
			failure_id TEXT NOT NULL REFERENCES failure_reports(id),
			description TEXT NOT NULL,
			owner_id TEXT REFERENCES users(id),
			status TEXT NOT NULL,
			due_at INTEGER,
			implemented_at INTEGER,
			verified_at INTEGER,
			verification_note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_status ON work_orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_asset ON work_orders(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_completed_at ON work_orders(completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_work_order_events_wo ON work_order_events(work_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_failure_reports_asset ON failure_reports(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_failure_reports_occurred_at ON failure_reports(occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_failure_reports_mode ON failure_reports(failure_mode)`,
		`CREATE INDEX IF NOT EXISTS idx_corrective_actions_failure ON corrective_actions(failure_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// Path returns location of the database file
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, retrying the whole transaction if the database file is locked
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// withRetry repeats fn only while it fails with a busy/locked database error
func (s *SQLiteStore) withRetry(ctx context.Context, fn func() error) error {
	if s.retry == nil {
		return fn()
	}

	var lastErr error
	err := s.retry.Do(ctx, func() error {
		lastErr = fn()
		if lastErr != nil && !isBusy(lastErr) {
			return errStopRetry
		}
		if lastErr != nil {
			log.Printf("[DEBUG] database busy, retrying: %v", lastErr)
		}
		return lastErr
	}, errStopRetry)

	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

// isBusy detects SQLITE_BUSY and SQLITE_LOCKED errors
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// isUnique detects uniqueness constraint violations
func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nextNumber returns the next sequential number for a numbered table
func nextNumber(ctx context.Context, tx *sqlx.Tx, table string) (int64, error) {
	var n int64
	if err := tx.GetContext(ctx, &n, "SELECT COALESCE(MAX(number), 0) + 1 FROM "+table); err != nil {
		return 0, fmt.Errorf("failed to get next number for %s: %w", table, err)
	}
	return n, nil
}

// toUnix converts time to unix seconds, zero time is stored as NULL
func toUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

// fromUnix converts nullable unix seconds to time, NULL becomes zero time
func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}

// nullString stores empty strings as NULL, used for optional foreign keys
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
