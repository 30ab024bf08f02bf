package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/editledger/internal/ir"
)

const editColumns = `id, seq, kind, target_type, target_id, actor, attr_key, previous_value, new_value,
	timestamp, undone, undone_by, undone_at, parent_id`

// Page bounds a history listing. Limit <= 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Edit reads one edit inside the transaction.
// Returns ErrNotFound if no edit has the id.
func (t *Tx) Edit(ctx context.Context, id string) (ir.Edit, error) {
	return readEdit(ctx, t.tx, id)
}

// LatestPropertyEdit returns the most recent property edit for (target, key),
// regardless of its undone state. Returns ErrNotFound if there is none.
func (t *Tx) LatestPropertyEdit(ctx context.Context, target ir.EntityRef, key string) (*ir.PropertyEdit, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+editColumns+`
		FROM edits
		WHERE target_type = ? AND target_id = ? AND kind = 'property' AND attr_key = ?
		ORDER BY seq DESC
		LIMIT 1
	`, target.Type, target.ID, key)
	e, err := scanEdit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest edit %s.%s: %w", target, key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e.(*ir.PropertyEdit), nil
}

// LatestDestroyEdit returns the most recent applied destroy edit for target.
// Returns ErrNotFound if there is none.
func (t *Tx) LatestDestroyEdit(ctx context.Context, target ir.EntityRef) (*ir.DestroyEdit, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+editColumns+`
		FROM edits
		WHERE target_type = ? AND target_id = ? AND kind = 'destroy' AND undone = 0
		ORDER BY seq DESC
		LIMIT 1
	`, target.Type, target.ID)
	e, err := scanEdit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest destroy %s: %w", target, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e.(*ir.DestroyEdit), nil
}

// Children returns the edits linked to parentID, ordered by seq.
func (t *Tx) Children(ctx context.Context, parentID string) ([]*ir.PropertyEdit, error) {
	return readChildren(ctx, t.tx, parentID)
}

// ReadEdit returns a committed edit by id.
// Returns ErrNotFound if no edit has the id.
func (s *Store) ReadEdit(ctx context.Context, id string) (ir.Edit, error) {
	return readEdit(ctx, s.db, id)
}

// ReadChildren returns the committed edits linked to parentID, ordered by seq.
func (s *Store) ReadChildren(ctx context.Context, parentID string) ([]*ir.PropertyEdit, error) {
	return readChildren(ctx, s.db, parentID)
}

// ListEdits returns the edit history of an entity in creation order, so each
// property edit's previous value is the new value of the one before it.
// Returns an empty slice (not nil) if the entity has no history.
func (s *Store) ListEdits(ctx context.Context, target ir.EntityRef, page Page) ([]ir.Edit, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+editColumns+`
		FROM edits
		WHERE target_type = ? AND target_id = ?
		ORDER BY seq ASC
		LIMIT ? OFFSET ?
	`, target.Type, target.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history %s: %w", target, err)
	}
	defer rows.Close()

	edits := []ir.Edit{}
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return edits, nil
}

// ReadAllEdits returns every edit in seq order.
func (s *Store) ReadAllEdits(ctx context.Context) ([]ir.Edit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+editColumns+`
		FROM edits
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query edits: %w", err)
	}
	defer rows.Close()

	edits := []ir.Edit{}
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edits: %w", err)
	}
	return edits, nil
}

func readEdit(ctx context.Context, q querier, id string) (ir.Edit, error) {
	row := q.QueryRowContext(ctx, `SELECT `+editColumns+` FROM edits WHERE id = ?`, id)
	e, err := scanEdit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("edit %s: %w", id, ErrNotFound)
	}
	return e, err
}

func readChildren(ctx context.Context, q querier, parentID string) ([]*ir.PropertyEdit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+editColumns+`
		FROM edits
		WHERE parent_id = ?
		ORDER BY seq ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", parentID, err)
	}
	defer rows.Close()

	children := []*ir.PropertyEdit{}
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		child, ok := e.(*ir.PropertyEdit)
		if !ok {
			return nil, fmt.Errorf("child %s of %s is a %s edit", e.Head().ID, parentID, e.Kind())
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return children, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEdit(row rowScanner) (ir.Edit, error) {
	var (
		h        ir.EditHeader
		kind     string
		actor    string
		key      sql.NullString
		previous sql.NullString
		next     sql.NullString
		ts       string
		undone   bool
		undoneBy sql.NullString
		undoneAt sql.NullString
		parentID sql.NullString
	)
	err := row.Scan(&h.ID, &h.Seq, &kind, &h.Target.Type, &h.Target.ID, &actor,
		&key, &previous, &next, &ts, &undone, &undoneBy, &undoneAt, &parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan edit: %w", err)
	}

	h.Actor = ir.ActorRef(actor)
	h.ParentID = parentID.String
	if h.Timestamp, err = unmarshalTime(ts); err != nil {
		return nil, err
	}
	at, err := unmarshalNullableTime(undoneAt)
	if err != nil {
		return nil, err
	}
	rev := ir.Reversal{Undone: undone, UndoneBy: ir.ActorRef(undoneBy.String), UndoneAt: at}

	switch ir.EditKind(kind) {
	case ir.KindCreate:
		return &ir.CreateEdit{EditHeader: h}, nil
	case ir.KindDestroy:
		return &ir.DestroyEdit{EditHeader: h, Reversal: rev}, nil
	case ir.KindProperty:
		prev, err := unmarshalNullableValue(previous)
		if err != nil {
			return nil, err
		}
		nv, err := unmarshalNullableValue(next)
		if err != nil {
			return nil, err
		}
		return &ir.PropertyEdit{EditHeader: h, Key: key.String, Previous: prev, New: nv, Reversal: rev}, nil
	default:
		return nil, fmt.Errorf("scan edit %s: unknown kind %q", h.ID, kind)
	}
}
