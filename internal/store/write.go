package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/editledger/internal/ir"
)

// InsertEdit appends an edit record to the ledger.
// The store assigns the next sequence number and writes it back to the
// record header; callers never choose Seq.
//
// A ParentID must name an edit that exists by the time the transaction
// commits. Children may be written before their parent.
func (t *Tx) InsertEdit(ctx context.Context, e ir.Edit) error {
	h := e.Head()

	var seq int64
	if err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM edits`).Scan(&seq); err != nil {
		return fmt.Errorf("insert edit: next seq: %w", err)
	}

	var (
		key      sql.NullString
		previous sql.NullString
		next     sql.NullString
		rev      ir.Reversal
		err      error
	)
	switch v := e.(type) {
	case *ir.CreateEdit:
	case *ir.PropertyEdit:
		key = sql.NullString{String: v.Key, Valid: true}
		if previous, err = marshalNullableValue(v.Previous); err != nil {
			return fmt.Errorf("insert edit: %w", err)
		}
		if next, err = marshalNullableValue(v.New); err != nil {
			return fmt.Errorf("insert edit: %w", err)
		}
		rev = v.Reversal
	case *ir.DestroyEdit:
		rev = v.Reversal
	default:
		return fmt.Errorf("insert edit: unknown edit type %T", e)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO edits
		(id, seq, kind, target_type, target_id, actor, attr_key, previous_value, new_value,
		 timestamp, undone, undone_by, undone_at, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID,
		seq,
		string(e.Kind()),
		h.Target.Type,
		h.Target.ID,
		string(h.Actor),
		key,
		previous,
		next,
		marshalTime(h.Timestamp),
		boolInt(rev.Undone),
		nullString(string(rev.UndoneBy)),
		marshalNullableTime(rev.UndoneAt),
		nullString(h.ParentID),
	)
	if err != nil {
		return fmt.Errorf("insert edit %s: %w", h.ID, err)
	}

	h.Seq = seq
	return nil
}

// AmendEdit replaces the new value and timestamp of a property edit that is
// still applied. Returns ErrConflict if the edit was undone in the meantime.
func (t *Tx) AmendEdit(ctx context.Context, id string, newValue ir.Value, at time.Time) error {
	next, err := marshalNullableValue(newValue)
	if err != nil {
		return fmt.Errorf("amend edit %s: %w", id, err)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE edits SET new_value = ?, timestamp = ?
		WHERE id = ? AND kind = 'property' AND undone = 0
	`, next, marshalTime(at), id)
	if err != nil {
		return fmt.Errorf("amend edit %s: %w", id, err)
	}
	return expectOneRow(result, "amend edit "+id)
}

// SetReversal flips an edit's undone flag. The update only matches when the
// edit is currently in the opposite state, so a racing undo or redo of the
// same edit yields ErrConflict instead of a double flip.
func (t *Tx) SetReversal(ctx context.Context, id string, undone bool, by ir.ActorRef, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE edits SET undone = ?, undone_by = ?, undone_at = ?
		WHERE id = ? AND kind != 'create' AND undone = ?
	`, boolInt(undone), nullString(string(by)), marshalTime(at), id, boolInt(!undone))
	if err != nil {
		return fmt.Errorf("set reversal %s: %w", id, err)
	}
	return expectOneRow(result, "set reversal "+id)
}

func expectOneRow(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return nil
}
