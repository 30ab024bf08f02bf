package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/editledger/internal/ir"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

var (
	testRef = ir.Ref("project", "p1")
	testOrg = ir.Ref("organization", "o1")
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustTx runs fn in a transaction and fails the test on error.
func mustTx(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	if err := s.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}
}

// createTestEntity creates a live entity.
func createTestEntity(t *testing.T, s *Store, ref ir.EntityRef) {
	t.Helper()
	mustTx(t, s, func(tx *Tx) error {
		return tx.CreateEntity(context.Background(), ref)
	})
}

// createTestPropertyEdit builds a property edit with minimal required fields.
func createTestPropertyEdit(id string, target ir.EntityRef, key string, prev, next ir.Value) *ir.PropertyEdit {
	return &ir.PropertyEdit{
		EditHeader: ir.EditHeader{
			ID:        id,
			Target:    target,
			Actor:     "tester",
			Timestamp: testTime,
		},
		Key:      key,
		Previous: prev,
		New:      next,
	}
}

// insertTestEdit inserts e in its own transaction.
func insertTestEdit(t *testing.T, s *Store, e ir.Edit) {
	t.Helper()
	mustTx(t, s, func(tx *Tx) error {
		return tx.InsertEdit(context.Background(), e)
	})
}
