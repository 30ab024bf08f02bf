package ledger

import (
	"context"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
)

// History returns the edits of ref in creation order.
func (l *Ledger) History(ctx context.Context, ref ir.EntityRef, page store.Page) ([]ir.Edit, error) {
	edits, err := l.store.ListEdits(ctx, ref, page)
	if err != nil {
		return nil, classify(err)
	}
	return edits, nil
}

// Edit returns one edit by id.
func (l *Ledger) Edit(ctx context.Context, id string) (ir.Edit, error) {
	e, err := l.store.ReadEdit(ctx, id)
	if isStoreNotFound(err) {
		return nil, notFoundError(ir.EntityRef{}, id, "edit does not exist")
	}
	if err != nil {
		return nil, classify(err)
	}
	return e, nil
}

// Children returns the cascade children linked to a destroy edit.
func (l *Ledger) Children(ctx context.Context, parentID string) ([]*ir.PropertyEdit, error) {
	children, err := l.store.ReadChildren(ctx, parentID)
	if err != nil {
		return nil, classify(err)
	}
	return children, nil
}

// Entity returns the live attributes and counters of ref.
func (l *Ledger) Entity(ctx context.Context, ref ir.EntityRef) (store.Entity, error) {
	ent, err := l.store.ReadEntity(ctx, ref)
	if isStoreNotFound(err) {
		return store.Entity{}, notFoundError(ref, "", "entity does not exist")
	}
	if err != nil {
		return store.Entity{}, classify(err)
	}
	return ent, nil
}
