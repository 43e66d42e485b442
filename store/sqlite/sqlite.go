/*
Package sqlite provides a SQLite-backed billing.LocalStore.

PURPOSE:
  Persists the two logical keys of the local state (config, data) in a
  key-value table, and keeps an append-only journal of every commit so the
  sequence of changes survives restarts even though the in-memory undo
  archive does not.

KEY TABLES:
  kv_store:       One row per logical key, value is a JSON document
  commit_journal: Append-only record of commits (description, origin,
                  room count, time). Never updated, never deleted.

CONCURRENCY:
  Uses sync.RWMutex around writes. The pool is limited to one connection
  so that ":memory:" databases are shared by all queries.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block the
  single writer.

USAGE:
  store, err := sqlite.New("./data/rent-ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - billing/store.go: LocalStore contract
  - store/badger: cgo-free alternative
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/rent-ledger/billing"
)

// Store implements billing.LocalStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Append-only commit journal
	CREATE TABLE IF NOT EXISTS commit_journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT NOT NULL,
		origin TEXT NOT NULL,
		room_count INTEGER NOT NULL,
		committed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commit_journal_committed_at
		ON commit_journal(committed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// KEY-VALUE - billing.LocalStore
// =============================================================================

// Get returns the value under key, or billing.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), nil
}

// Put upserts the value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// COMMIT JOURNAL
// =============================================================================

// JournalEntry is one recorded commit.
type JournalEntry struct {
	Seq         int64     `json:"seq"`
	Description string    `json:"desc"`
	Origin      string    `json:"origin"`
	RoomCount   int       `json:"roomCount"`
	CommittedAt time.Time `json:"committedAt"`
}

// AppendJournal records a commit. Append-only.
func (s *Store) AppendJournal(ctx context.Context, ev billing.CommitEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commit_journal (description, origin, room_count, committed_at)
		VALUES (?, ?, ?, ?)
	`, ev.Desc, string(ev.Origin), len(ev.Rooms), ev.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// Journal returns the most recent entries, newest first. limit <= 0 means 100.
func (s *Store) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, description, origin, room_count, committed_at
		FROM commit_journal
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var at string
		if err := rows.Scan(&e.Seq, &e.Description, &e.Origin, &e.RoomCount, &at); err != nil {
			return nil, err
		}
		e.CommittedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}
