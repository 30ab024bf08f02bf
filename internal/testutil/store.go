package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/editledger/internal/entity"
	"github.com/roach88/editledger/internal/store"
)

// NewStore opens a store in a temporary directory and closes it when the
// test ends.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return st
}

// BuiltinRegistry returns a registry of the built-in entity types.
func BuiltinRegistry(t testing.TB) *entity.Registry {
	t.Helper()
	reg, err := entity.NewRegistry(entity.BuiltinTypes()...)
	if err != nil {
		t.Fatalf("builtin registry: %v", err)
	}
	return reg
}
