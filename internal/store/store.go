// Package store is the repository (spec §4.3): the only component that
// opens write transactions against the embedded relational store. It wraps
// mattn/go-sqlite3 in WAL mode with synchronous=FULL, so every committed
// transaction is flushed to disk, and validates every
// status transition against internal/statemachine inside the same
// transaction that writes it.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/logging"
)

// Repository wraps the SQLite-backed store. It exclusively owns the
// persistent store: only it opens write transactions (spec §3 Ownership).
type Repository struct {
	db     *sql.DB
	mu     sync.Mutex // serializes writers beyond what SQLite's own locking gives us, for clearer error semantics
	log    *zap.Logger
	dbPath string
}

// Open creates (if needed) and opens the SQLite database at path, applies
// WAL + synchronous=FULL pragmas, so each committed transaction is flushed
// to disk, and runs the schema migration.
func Open(path string) (*Repository, error) {
	log := logging.Named("store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, "", fmt.Errorf("create store directory %s: %w", dir, err))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, "", fmt.Errorf("open sqlite database: %w", err))
	}
	// A single connection keeps write-serialization semantics simple and
	// matches the teacher's own NewLocalStore (internal/store/local_core.go).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, domain.NewError(domain.ErrInfrastructure, "", fmt.Errorf("apply pragma %q: %w", pragma, err))
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, domain.NewError(domain.ErrInfrastructure, "", fmt.Errorf("run schema migration: %w", err))
	}

	log.Info("repository opened", zap.String("path", path))
	return &Repository{db: db, log: log, dbPath: path}, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// withTx runs fn inside a single transaction, committing on success and
// rolling back on any error, including a panic (re-panicking after
// rollback). Every repository write goes through this helper so the
// transactional boundary named in spec §4.3 is enforced in one place.
func (r *Repository) withTx(fn func(tx *sql.Tx) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return domain.NewError(domain.ErrInfrastructure, "", fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return domain.NewError(domain.ErrInfrastructure, "", fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}
