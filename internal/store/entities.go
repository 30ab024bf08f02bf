package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/editledger/internal/ir"
)

// EntityStatus is the lifecycle state of an entity row.
type EntityStatus int

const (
	EntityMissing EntityStatus = iota
	EntityLive
	EntityDeleted
)

func (s EntityStatus) String() string {
	switch s {
	case EntityLive:
		return "live"
	case EntityDeleted:
		return "deleted"
	default:
		return "missing"
	}
}

// Entity is a snapshot of an entity's live state.
type Entity struct {
	Ref        ir.EntityRef
	Status     EntityStatus
	Attributes map[string]ir.Value
	Counters   map[string]int64
}

// CreateEntity inserts a live entity row.
// Returns ErrEntityExists if the entity was created before (live or deleted).
func (t *Tx) CreateEntity(ctx context.Context, ref ir.EntityRef) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO entities (entity_type, entity_id, deleted)
		VALUES (?, ?, 0)
		ON CONFLICT(entity_type, entity_id) DO NOTHING
	`, ref.Type, ref.ID)
	if err != nil {
		return fmt.Errorf("create entity %s: %w", ref, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create entity %s: rows affected: %w", ref, err)
	}
	if n == 0 {
		return fmt.Errorf("create entity %s: %w", ref, ErrEntityExists)
	}
	return nil
}

// Status returns the lifecycle state of an entity.
func (t *Tx) Status(ctx context.Context, ref ir.EntityRef) (EntityStatus, error) {
	return entityStatus(ctx, t.tx, ref)
}

// SetDeleted flips an entity between live and deleted.
func (t *Tx) SetDeleted(ctx context.Context, ref ir.EntityRef, deleted bool) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE entities SET deleted = ?
		WHERE entity_type = ? AND entity_id = ?
	`, boolInt(deleted), ref.Type, ref.ID)
	if err != nil {
		return fmt.Errorf("set deleted %s: %w", ref, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set deleted %s: rows affected: %w", ref, err)
	}
	if n == 0 {
		return fmt.Errorf("set deleted %s: %w", ref, ErrNotFound)
	}
	return nil
}

// Attr returns the live value of an attribute. Absent attributes are Null.
func (t *Tx) Attr(ctx context.Context, ref ir.EntityRef, key string) (ir.Value, error) {
	return liveAttr(ctx, t.tx, ref, key)
}

// SetAttr writes the live value of an attribute. Null removes the row.
func (t *Tx) SetAttr(ctx context.Context, ref ir.EntityRef, key string, v ir.Value) error {
	if ir.IsEmpty(v) {
		if _, err := t.tx.ExecContext(ctx, `
			DELETE FROM entity_attributes
			WHERE entity_type = ? AND entity_id = ? AND attr_key = ?
		`, ref.Type, ref.ID, key); err != nil {
			return fmt.Errorf("clear attribute %s.%s: %w", ref, key, err)
		}
		return nil
	}

	raw, err := marshalValue(v)
	if err != nil {
		return fmt.Errorf("write attribute %s.%s: %w", ref, key, err)
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO entity_attributes (entity_type, entity_id, attr_key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id, attr_key) DO UPDATE SET value = excluded.value
	`, ref.Type, ref.ID, key, raw); err != nil {
		return fmt.Errorf("write attribute %s.%s: %w", ref, key, err)
	}
	return nil
}

// Referencing returns entities of sourceType whose key attribute points at
// targetID. Deleted entities are included only when includeDeleted is set.
// Results are ordered by entity id.
func (t *Tx) Referencing(ctx context.Context, sourceType, key, targetID string, includeDeleted bool) ([]ir.EntityRef, error) {
	forms := referenceForms(targetID)
	rows, err := t.tx.QueryContext(ctx, `
		SELECT a.entity_id
		FROM entity_attributes a
		JOIN entities e ON e.entity_type = a.entity_type AND e.entity_id = a.entity_id
		WHERE a.entity_type = ? AND a.attr_key = ? AND a.value IN (?, ?) AND (e.deleted = 0 OR ?)
		ORDER BY a.entity_id COLLATE BINARY ASC
	`, sourceType, key, forms[0], forms[1], includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("query referencing %s.%s: %w", sourceType, key, err)
	}
	defer rows.Close()

	refs := []ir.EntityRef{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan referencing: %w", err)
		}
		refs = append(refs, ir.Ref(sourceType, id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referencing: %w", err)
	}
	return refs, nil
}

// RecountReferences recomputes a counter on target as the number of live
// sourceType entities whose key attribute points at it, and stores it.
func (t *Tx) RecountReferences(ctx context.Context, target ir.EntityRef, counter, sourceType, key string) (int64, error) {
	forms := referenceForms(target.ID)
	var n int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM entity_attributes a
		JOIN entities e ON e.entity_type = a.entity_type AND e.entity_id = a.entity_id
		WHERE a.entity_type = ? AND a.attr_key = ? AND a.value IN (?, ?) AND e.deleted = 0
	`, sourceType, key, forms[0], forms[1]).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s.%s references to %s: %w", sourceType, key, target, err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO entity_counters (entity_type, entity_id, counter, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id, counter) DO UPDATE SET value = excluded.value
	`, target.Type, target.ID, counter, n); err != nil {
		return 0, fmt.Errorf("write counter %s.%s: %w", target, counter, err)
	}
	return n, nil
}

// ReadEntity returns the live snapshot of an entity.
// Returns ErrNotFound if the entity was never created.
func (s *Store) ReadEntity(ctx context.Context, ref ir.EntityRef) (Entity, error) {
	status, err := entityStatus(ctx, s.db, ref)
	if err != nil {
		return Entity{}, err
	}
	if status == EntityMissing {
		return Entity{}, fmt.Errorf("read entity %s: %w", ref, ErrNotFound)
	}

	ent := Entity{
		Ref:        ref,
		Status:     status,
		Attributes: map[string]ir.Value{},
		Counters:   map[string]int64{},
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT attr_key, value FROM entity_attributes
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY attr_key ASC
	`, ref.Type, ref.ID)
	if err != nil {
		return Entity{}, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return Entity{}, fmt.Errorf("scan attribute: %w", err)
		}
		v, err := unmarshalValue(raw)
		if err != nil {
			return Entity{}, err
		}
		ent.Attributes[key] = v
	}
	if err := rows.Err(); err != nil {
		return Entity{}, fmt.Errorf("iterate attributes: %w", err)
	}

	counterRows, err := s.db.QueryContext(ctx, `
		SELECT counter, value FROM entity_counters
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY counter ASC
	`, ref.Type, ref.ID)
	if err != nil {
		return Entity{}, fmt.Errorf("query counters: %w", err)
	}
	defer counterRows.Close()
	for counterRows.Next() {
		var name string
		var n int64
		if err := counterRows.Scan(&name, &n); err != nil {
			return Entity{}, fmt.Errorf("scan counter: %w", err)
		}
		ent.Counters[name] = n
	}
	if err := counterRows.Err(); err != nil {
		return Entity{}, fmt.Errorf("iterate counters: %w", err)
	}

	return ent, nil
}

func entityStatus(ctx context.Context, q querier, ref ir.EntityRef) (EntityStatus, error) {
	var deleted bool
	err := q.QueryRowContext(ctx, `
		SELECT deleted FROM entities WHERE entity_type = ? AND entity_id = ?
	`, ref.Type, ref.ID).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return EntityMissing, nil
	}
	if err != nil {
		return EntityMissing, fmt.Errorf("read entity status %s: %w", ref, err)
	}
	if deleted {
		return EntityDeleted, nil
	}
	return EntityLive, nil
}

// referenceForms returns the stored encodings a reference to id may take:
// the JSON string form, and the integer form when id is numeric.
func referenceForms(id string) [2]string {
	str, _ := marshalValue(ir.String(id))
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return [2]string{str, strconv.FormatInt(n, 10)}
	}
	return [2]string{str, str}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
