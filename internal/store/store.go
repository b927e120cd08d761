package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrVersionConflict   = errors.New("version conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate record")
	ErrInvalidState      = errors.New("invalid state transition")
)

// VersionConflictError is the ErrVersionConflict returned by conditional
// product writes. Found is the version stored when the write was refused.
type VersionConflictError struct {
	Expected int
	Found    int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, found %d", e.Expected, e.Found)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type Store struct {
	db *sqlx.DB
}

// NewStore connects to driver ("postgres" or "sqlite") at url.
func NewStore(driver, url string) (*Store, error) {
	db, err := sqlx.Connect(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		// one writer at a time keeps sqlite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection pool.
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func utc(t time.Time) time.Time {
	return t.UTC()
}
