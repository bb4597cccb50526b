package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store configuration constants.
const (
	// dirPermissions is the permission mode for the store directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the store file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying store connectivity.
	connectionTimeout = 5 * time.Second
)

// Store is the node's local SQLite database.
//
// It persists the two things that must survive deep sleep and power loss:
// the reconnection counters, and a short journal of recent wake cycles for
// field diagnostics.
type Store struct {
	db   *sql.DB
	path string
}

// Config contains store configuration options.
// These map to the store section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging. On flash storage this also
	// reduces write amplification versus rollback journaling.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// CycleRecord is one wake cycle's outcome.
type CycleRecord struct {
	StartedAt time.Time
	Connected bool
	Published int
	Detail    string
}

// Open creates the store, applying pragmas and creating the schema on
// first run.
//
// Parameters:
//   - cfg: Store configuration
//
// Returns:
//   - *Store: Ready store
//   - error: If connection or schema setup fails
func Open(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// One connection is all a single-threaded node ever needs.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s := &Store{db: sqlDB, path: cfg.Path}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying store connection: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	// Ignore error - file might not exist yet on first run, will be set after first write
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return s, nil
}

// ensureSchema creates the tables on first run.
func (s *Store) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS reconnect_state (
    id                INTEGER PRIMARY KEY CHECK (id = 1),
    attempt_count     INTEGER NOT NULL,
    last_attempt_unix INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_journal (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    started_unix INTEGER NOT NULL,
    connected    INTEGER NOT NULL,
    published    INTEGER NOT NULL,
    detail       TEXT NOT NULL DEFAULT ''
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating store schema: %w", err)
	}
	return nil
}

// Close closes the store. Called right before the node sleeps.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the store file.
func (s *Store) Path() string {
	return s.path
}

// LoadReconnect returns the persisted reconnection counters. A store with
// no saved state yet returns zeroes, which the policy treats as a fresh
// start.
func (s *Store) LoadReconnect(ctx context.Context) (attemptCount int, lastAttempt time.Time, err error) {
	var unix int64
	row := s.db.QueryRowContext(ctx,
		"SELECT attempt_count, last_attempt_unix FROM reconnect_state WHERE id = 1")
	if err := row.Scan(&attemptCount, &unix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("loading reconnect state: %w", err)
	}
	if unix > 0 {
		lastAttempt = time.Unix(unix, 0).UTC()
	}
	return attemptCount, lastAttempt, nil
}

// SaveReconnect writes both reconnection counters in one statement. They
// are only meaningful as a pair, so there is no way to persist one without
// the other.
func (s *Store) SaveReconnect(ctx context.Context, attemptCount int, lastAttempt time.Time) error {
	var unix int64
	if !lastAttempt.IsZero() {
		unix = lastAttempt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reconnect_state (id, attempt_count, last_attempt_unix)
VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    attempt_count = excluded.attempt_count,
    last_attempt_unix = excluded.last_attempt_unix`,
		attemptCount, unix)
	if err != nil {
		return fmt.Errorf("saving reconnect state: %w", err)
	}
	return nil
}

// RecordCycle appends one wake cycle to the journal.
func (s *Store) RecordCycle(ctx context.Context, rec CycleRecord) error {
	connected := 0
	if rec.Connected {
		connected = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cycle_journal (started_unix, connected, published, detail)
VALUES (?, ?, ?, ?)`,
		rec.StartedAt.Unix(), connected, rec.Published, rec.Detail)
	if err != nil {
		return fmt.Errorf("recording cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the latest journal entries, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT started_unix, connected, published, detail
FROM cycle_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading cycle journal: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var unix int64
		var connected int
		if err := rows.Scan(&unix, &connected, &rec.Published, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scanning cycle row: %w", err)
		}
		rec.StartedAt = time.Unix(unix, 0).UTC()
		rec.Connected = connected == 1
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cycle journal: %w", err)
	}
	return out, nil
}

// PruneCycles trims the journal to the newest keep entries, bounding the
// file size on long-lived nodes.
func (s *Store) PruneCycles(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM cycle_journal
WHERE id NOT IN (SELECT id FROM cycle_journal ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("pruning cycle journal: %w", err)
	}
	return nil
}
