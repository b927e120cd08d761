package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// NewTestStore returns a store backed by a private in-memory sqlite
// database with the schema applied. The database is dropped on cleanup.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := NewStoreFromDB(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		t.Fatalf("apply schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return s
}
