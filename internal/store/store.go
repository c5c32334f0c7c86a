// Package store persists task records in a local SQLite database.
//
// The store is a durability mirror: the lifecycle service holds the
// authoritative in-memory collection and writes through on every
// mutation. Close followed by any operation transparently reopens the
// connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	embedsql "github.com/ldi/nudge/embed/sql"
	_ "modernc.org/sqlite"
)

type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// New returns a store backed by the SQLite database at path. No I/O
// happens until Init or the first operation. The path ":memory:" keeps
// everything in process memory.
func New(path string) *Store {
	return &Store{path: path}
}

// Init opens the database and applies the schema. It is idempotent:
// once a call succeeds, subsequent calls are no-ops, and concurrent
// callers serialize so no two initializations race.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.connLocked(ctx)
	return err
}

// Close releases the connection. The next operation reinitializes.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// conn returns the live connection, opening it if needed.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connLocked(ctx)
}

func (s *Store) connLocked(ctx context.Context) (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	if s.path != ":memory:" {
		dir := filepath.Dir(s.path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, storageErr(ErrNotSupported, "open", err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, storageErr(ErrNotSupported, "open", err)
	}

	// WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, storageErr(ErrNotSupported, "open", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	return db, nil
}

// migrate applies the embedded schema. There is exactly one schema
// version; a database written by a different version is dropped and
// recreated rather than migrated.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return storageErr(ErrInitFailed, "migrate", err)
	}

	if version != 0 && version != embedsql.Version {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS tasks"); err != nil {
			return storageErr(ErrInitFailed, "migrate", err)
		}
	}

	if _, err := db.ExecContext(ctx, embedsql.Schema); err != nil {
		return storageErr(ErrInitFailed, "migrate", err)
	}

	query := fmt.Sprintf("PRAGMA user_version = %d", embedsql.Version)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return storageErr(ErrInitFailed, "migrate", err)
	}

	return nil
}
