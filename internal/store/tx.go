package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when an edit or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update matched no row:
	// the record changed underneath the caller.
	ErrConflict = errors.New("record changed concurrently")

	// ErrEntityExists is returned when creating an entity that already exists.
	ErrEntityExists = errors.New("entity already exists")
)

// IsBusy reports whether err is lock contention or a transaction deadline,
// i.e. a failure that is safe to retry.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// Tx is a single ledger transaction. Every mutation of entity state and
// every edit record write goes through a Tx so that they commit together.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside one IMMEDIATE transaction.
// The transaction commits if fn returns nil and rolls back otherwise;
// nothing fn wrote is visible unless the whole function succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
