// Package helpers provides shared test fixtures.
package helpers

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/runmeter/runmeter/store"
)

// NewTestSQLiteStore returns a store backed by a fresh in-memory database.
// The database is named so every pooled connection sees the same data.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
