package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/editledger/internal/ir"
)

// Divergence is a mismatch between the ledger and live entity state.
type Divergence struct {
	Target   ir.EntityRef `json:"target"`
	Key      string       `json:"key,omitempty"` // Empty for lifecycle mismatches
	EditID   string       `json:"edit_id,omitempty"`
	Expected string       `json:"expected"`
	Actual   string       `json:"actual"`
}

func (d Divergence) String() string {
	if d.Key == "" {
		return fmt.Sprintf("%s: expected %s, got %s", d.Target, d.Expected, d.Actual)
	}
	return fmt.Sprintf("%s.%s: expected %q, got %q (edit %s)", d.Target, d.Key, d.Expected, d.Actual, d.EditID)
}

// Verify checks that live state agrees with the ledger:
//   - for each (target, key) the live value equals the newest edit's
//     new value, or its previous value when that edit is undone
//   - an entity is deleted exactly when it has an applied destroy edit
//
// Returns an empty slice when the store is consistent.
func (s *Store) Verify(ctx context.Context) ([]Divergence, error) {
	divergences := []Divergence{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+editColumns+`
		FROM edits e
		WHERE kind = 'property' AND seq = (
			SELECT MAX(seq) FROM edits x
			WHERE x.target_type = e.target_type AND x.target_id = e.target_id
			  AND x.kind = 'property' AND x.attr_key = e.attr_key
		)
		ORDER BY target_type, target_id, attr_key
	`)
	if err != nil {
		return nil, fmt.Errorf("verify: query latest edits: %w", err)
	}
	latest := []*ir.PropertyEdit{}
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("verify: %w", err)
		}
		latest = append(latest, e.(*ir.PropertyEdit))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("verify: iterate latest edits: %w", err)
	}
	rows.Close()

	for _, pe := range latest {
		expected := pe.New
		if pe.Undone {
			expected = pe.Previous
		}
		actual, err := liveAttr(ctx, s.db, pe.Target, pe.Key)
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		if !ir.Equal(expected, actual) {
			divergences = append(divergences, Divergence{
				Target:   pe.Target,
				Key:      pe.Key,
				EditID:   pe.ID,
				Expected: ir.Text(expected),
				Actual:   ir.Text(actual),
			})
		}
	}

	lifecycle, err := s.verifyLifecycle(ctx)
	if err != nil {
		return nil, err
	}
	return append(divergences, lifecycle...), nil
}

func (s *Store) verifyLifecycle(ctx context.Context) ([]Divergence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.target_type, t.target_id, en.deleted,
		       (SELECT COUNT(*) FROM edits d
		        WHERE d.target_type = t.target_type AND d.target_id = t.target_id
		          AND d.kind = 'destroy' AND d.undone = 0)
		FROM (SELECT DISTINCT target_type, target_id FROM edits) t
		LEFT JOIN entities en ON en.entity_type = t.target_type AND en.entity_id = t.target_id
		ORDER BY t.target_type, t.target_id
	`)
	if err != nil {
		return nil, fmt.Errorf("verify: query lifecycle: %w", err)
	}
	defer rows.Close()

	divergences := []Divergence{}
	for rows.Next() {
		var (
			ref     ir.EntityRef
			deleted sql.NullBool
			applied int
		)
		if err := rows.Scan(&ref.Type, &ref.ID, &deleted, &applied); err != nil {
			return nil, fmt.Errorf("verify: scan lifecycle: %w", err)
		}

		expected := "live"
		if applied > 0 {
			expected = "deleted"
		}
		actual := "missing"
		if deleted.Valid {
			actual = "live"
			if deleted.Bool {
				actual = "deleted"
			}
		}
		if expected != actual {
			divergences = append(divergences, Divergence{Target: ref, Expected: expected, Actual: actual})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verify: iterate lifecycle: %w", err)
	}
	return divergences, nil
}

func liveAttr(ctx context.Context, q querier, ref ir.EntityRef, key string) (ir.Value, error) {
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT value FROM entity_attributes
		WHERE entity_type = ? AND entity_id = ? AND attr_key = ?
	`, ref.Type, ref.ID, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Null{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attribute %s.%s: %w", ref, key, err)
	}
	return unmarshalValue(raw)
}
