/*
Package badger provides a Badger-backed billing.LocalStore.

PURPOSE:
  An embedded, pure-Go alternative to the SQLite store for deployments
  that cannot use cgo. Each logical key (config, data) is one Badger key
  under a fixed prefix.

USAGE:
  store, err := badger.Open(badger.Config{Path: "./data/badger"}, logger)
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: LocalStore contract
  - store/sqlite: SQLite implementation
*/
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/billing"
)

const keyPrefix = "rent-ledger/"

// Config configures the database.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// Store implements billing.LocalStore on Badger.
type Store struct {
	db *badger.DB
}

// zapLogger adapts zap to Badger's Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l zapLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l zapLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l zapLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

// Open opens (or creates) the database. Path is required unless InMemory.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(zapLogger{s: logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway in-memory database.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true}, nil)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value under key, or billing.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, billing.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), value)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
