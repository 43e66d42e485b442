// Package postgres is a reconcile.Remote backed directly by a PostgreSQL
// table: one row per user holding the whole room collection as jsonb.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/reconcile"
)

// DefaultTable is the backup table name.
const DefaultTable = "landlord_backup"

// Querier is the subset of *pgxpool.Pool the store uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements reconcile.Remote.
type Store struct {
	db     Querier
	table  string
	logger *zap.Logger
}

// New creates a store over db. An empty table uses DefaultTable.
func New(db Querier, table string, logger *zap.Logger) *Store {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, table: pgx.Identifier{table}.Sanitize(), logger: logger}
}

// NewPool parses databaseURL and opens a pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// Migrate creates the backup table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			user_id TEXT PRIMARY KEY,
			data JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Fetch returns the user's row, or (nil, nil) when there is none.
func (s *Store) Fetch(ctx context.Context, userID string) (*reconcile.Row, error) {
	query := `SELECT user_id, data, updated_at FROM ` + s.table + ` WHERE user_id = $1`

	var (
		row reconcile.Row
		raw []byte
	)
	err := s.db.QueryRow(ctx, query, userID).Scan(&row.UserID, &raw, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup: %w", err)
	}

	row.Data, err = reconcile.DecodeData(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	return &row, nil
}

// Upsert replaces the user's row.
func (s *Store) Upsert(ctx context.Context, row reconcile.Row) error {
	data := row.Data
	if data == nil {
		data = []billing.Room{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal rooms: %w", err)
	}

	query := `
		INSERT INTO ` + s.table + ` (user_id, data, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	updatedAt := row.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	if _, err := s.db.Exec(ctx, query, row.UserID, string(body), updatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert backup: %w", err)
	}

	s.logger.Debug("upserted backup",
		zap.String("user_id", row.UserID),
		zap.Int("rooms", len(data)),
	)
	return nil
}
