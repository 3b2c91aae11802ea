// Package store manages SQLite persistence for a Cord replica.
//
// The entries table is append-only: inserts are idempotent on message_id
// and triggers abort any UPDATE or DELETE. Delivery telemetry lives in a
// side table so the entries table never needs to change. Clock state and
// per-peer sync checkpoints are kept next to the log so a restart never
// regresses the local Lamport clock.
//
// Every ordered read uses the same ORDER BY as model.Compare:
//
//	lamport_ts, author_id, author_counter, message_id (BINARY collation)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns one SQLite database in WAL mode. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and initializes the
// schema. Write transactions take the database lock up front so concurrent
// writers queue on busy_timeout instead of failing lock upgrades.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)" +
		"&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
func retryOnContention(ctx context.Context, fn func() error) error {
	return retryOp(ctx, defaultRetryConfig, fn)
}

const schemaVersion = 1

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		message_id     TEXT PRIMARY KEY,
		author_id      TEXT NOT NULL,
		author_counter INTEGER NOT NULL,
		lamport_ts     INTEGER NOT NULL,
		hub_id         TEXT NOT NULL DEFAULT '',
		channel_id     TEXT NOT NULL DEFAULT '',
		cord_id        TEXT NOT NULL DEFAULT '',
		thread_id      TEXT NOT NULL DEFAULT '',
		class          TEXT NOT NULL,
		payload        BLOB,
		signature      BLOB,
		integrity_hash TEXT NOT NULL,
		stored_at      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_order  ON entries(lamport_ts, author_id, author_counter, message_id);
	CREATE INDEX IF NOT EXISTS idx_entries_group  ON entries(hub_id, channel_id, lamport_ts);
	CREATE INDEX IF NOT EXISTS idx_entries_cord   ON entries(cord_id, lamport_ts);
	CREATE INDEX IF NOT EXISTS idx_entries_class  ON entries(class, lamport_ts);
	CREATE INDEX IF NOT EXISTS idx_entries_author ON entries(author_id, lamport_ts, author_counter);
	CREATE INDEX IF NOT EXISTS idx_entries_thread ON entries(thread_id, lamport_ts);

	CREATE TRIGGER IF NOT EXISTS entries_no_update BEFORE UPDATE ON entries
	BEGIN
		SELECT RAISE(ABORT, 'cord entries are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS entries_no_delete BEFORE DELETE ON entries
	BEGIN
		SELECT RAISE(ABORT, 'cord entries are append-only');
	END;

	CREATE TABLE IF NOT EXISTS deliveries (
		message_id TEXT PRIMARY KEY REFERENCES entries(message_id),
		marker     TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clock_state (
		author_id      TEXT PRIMARY KEY,
		last_timestamp INTEGER NOT NULL DEFAULT 0,
		last_counter   INTEGER NOT NULL DEFAULT 0,
		updated_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS peer_checkpoints (
		peer_id    TEXT PRIMARY KEY,
		pulled_ts  INTEGER NOT NULL DEFAULT 0,
		pushed_ts  INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// SchemaVersion reports the PRAGMA user_version of the open database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
