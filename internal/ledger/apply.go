package ledger

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/editledger/internal/entity"
	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
)

// applyValue is the single path through which the ledger writes a live
// attribute. Counters fed by (ref.Type, key) are recomputed for both the
// entity the old value pointed at and the one the new value points at.
func (t *txn) applyValue(ctx context.Context, ref ir.EntityRef, key string, old, next ir.Value) error {
	if err := t.tx.SetAttr(ctx, ref, key, next); err != nil {
		return err
	}

	counters := t.l.registry.CountersFor(ref.Type, key)
	if len(counters) == 0 {
		return nil
	}
	owners := mapset.NewThreadUnsafeSet[string]()
	for _, v := range []ir.Value{old, next} {
		if !ir.IsEmpty(v) {
			owners.Add(ir.Text(v))
		}
	}
	return t.recount(ctx, counters, owners)
}

// refreshCounters recomputes every counter fed by ref's references, after
// ref was destroyed or restored.
func (t *txn) refreshCounters(ctx context.Context, ref ir.EntityRef) error {
	for _, c := range t.l.registry.CountersFrom(ref.Type) {
		v, err := t.tx.Attr(ctx, ref, c.Key)
		if err != nil {
			return err
		}
		if ir.IsEmpty(v) {
			continue
		}
		if err := t.recount(ctx, []entity.CounterRef{c}, mapset.NewThreadUnsafeSet(ir.Text(v))); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) recount(ctx context.Context, counters []entity.CounterRef, ownerIDs mapset.Set[string]) error {
	for _, c := range counters {
		for _, id := range mapset.Sorted(ownerIDs) {
			owner := ir.Ref(c.OwnerType, id)
			status, err := t.tx.Status(ctx, owner)
			if err != nil {
				return err
			}
			// Missing and deleted owners keep no count.
			if status != store.EntityLive {
				continue
			}
			if _, err := t.tx.RecountReferences(ctx, owner, c.Name, c.Source, c.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

// requireLive returns NotFound unless ref exists and is not deleted.
func (t *txn) requireLive(ctx context.Context, ref ir.EntityRef) error {
	status, err := t.tx.Status(ctx, ref)
	if err != nil {
		return err
	}
	switch status {
	case store.EntityMissing:
		return notFoundError(ref, "", "entity does not exist")
	case store.EntityDeleted:
		return notFoundError(ref, "", "entity is deleted")
	}
	return nil
}

// latestFor returns the newest property edit for (target, key), or nil.
func (t *txn) latestFor(ctx context.Context, target ir.EntityRef, key string) (*ir.PropertyEdit, error) {
	pe, err := t.tx.LatestPropertyEdit(ctx, target, key)
	if isStoreNotFound(err) {
		return nil, nil
	}
	return pe, err
}

func (t *txn) markUndone(ctx context.Context, e ir.Edit, rev *ir.Reversal, undone bool, actor ir.ActorRef) error {
	if err := t.tx.SetReversal(ctx, e.Head().ID, undone, actor, t.now); err != nil {
		return err
	}
	at := t.now
	*rev = ir.Reversal{Undone: undone, UndoneBy: actor, UndoneAt: &at}
	return nil
}
