package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
)

// RecordCreation registers a new live entity and records its creation.
func (l *Ledger) RecordCreation(ctx context.Context, ref ir.EntityRef, actor ir.ActorRef) (*ir.CreateEdit, error) {
	if _, err := l.lookup(ref, actor); err != nil {
		return nil, err
	}

	var created *ir.CreateEdit
	err := l.run(ctx, "RecordCreation", refAttrs(ref, actor), func(ctx context.Context, t *txn) error {
		if err := t.tx.CreateEntity(ctx, ref); err != nil {
			if errors.Is(err, store.ErrEntityExists) {
				return validationError(ref, "", "entity already exists")
			}
			return err
		}
		ce := &ir.CreateEdit{EditHeader: ir.EditHeader{
			ID:        t.l.ids.Generate(),
			Target:    ref,
			Actor:     actor,
			Timestamp: t.now,
		}}
		if err := t.tx.InsertEdit(ctx, ce); err != nil {
			return err
		}
		created = ce
		return nil
	})
	if err != nil {
		return nil, err
	}

	editsTotal.WithLabelValues(string(ir.KindCreate), string(OutcomeApplied)).Inc()
	l.logger.Info("recorded creation", "edit_id", created.ID, "target", ref.String())
	return created, nil
}

// RecordDestruction destroys ref and cascades to its dependents.
//
// With CascadeClear every entity referencing ref, deleted ones included,
// gets a child edit clearing the reference, linked to the destroy record.
// With CascadeRestrict the destroy is refused while any live dependent
// exists.
func (l *Ledger) RecordDestruction(ctx context.Context, ref ir.EntityRef, actor ir.ActorRef, policy CascadePolicy) (CascadeResult, error) {
	if _, err := l.lookup(ref, actor); err != nil {
		return CascadeResult{}, err
	}
	switch policy {
	case "":
		policy = CascadeClear
	case CascadeClear, CascadeRestrict:
	default:
		return CascadeResult{}, validationError(ref, "", "unknown cascade policy %q", policy)
	}

	var result CascadeResult
	attrs := append(refAttrs(ref, actor), attribute.String("policy", string(policy)))
	err := l.run(ctx, "RecordDestruction", attrs, func(ctx context.Context, t *txn) error {
		if err := t.requireLive(ctx, ref); err != nil {
			return err
		}
		r, err := t.destroy(ctx, ref, actor, policy)
		result = r
		return err
	})
	if err != nil {
		return CascadeResult{}, err
	}

	l.reportCascade("destroy", result)
	editsTotal.WithLabelValues(string(ir.KindDestroy), string(OutcomeApplied)).Inc()
	l.logger.Info("recorded destruction",
		"edit_id", result.Destroy.ID,
		"target", ref.String(),
		"children", len(result.Children),
	)
	return result, nil
}

// destroy marks ref deleted and clears every reference to it. References
// held by deleted entities are cleared too so a later restore of those
// entities cannot bring back a dangling reference. Children are written
// before the destroy record so the destroy is last.
func (t *txn) destroy(ctx context.Context, ref ir.EntityRef, actor ir.ActorRef, policy CascadePolicy) (CascadeResult, error) {
	d := &ir.DestroyEdit{EditHeader: ir.EditHeader{
		ID:        t.l.ids.Generate(),
		Target:    ref,
		Actor:     actor,
		Timestamp: t.now,
	}}

	if policy == CascadeRestrict {
		live, err := t.dependents(ctx, ref, false)
		if err != nil {
			return CascadeResult{}, err
		}
		if len(live) > 0 {
			return CascadeResult{}, validationError(ref, "", "%d dependent(s) still reference this entity", len(live))
		}
	}
	dependents, err := t.dependents(ctx, ref, true)
	if err != nil {
		return CascadeResult{}, err
	}

	children, err := t.clearReferences(ctx, d, dependents, actor)
	if err != nil {
		return CascadeResult{}, err
	}

	if err := t.tx.SetDeleted(ctx, ref, true); err != nil {
		return CascadeResult{}, err
	}
	if err := t.tx.InsertEdit(ctx, d); err != nil {
		return CascadeResult{}, err
	}
	if err := t.refreshCounters(ctx, ref); err != nil {
		return CascadeResult{}, err
	}

	return CascadeResult{Destroy: d, Children: children, Skipped: []SkippedChild{}}, nil
}

// dependentRef is one attribute pointing at a destroyed entity.
type dependentRef struct {
	Target ir.EntityRef
	Key    string
}

// dependents lists references to ref, ordered by source type, key, then
// entity id. References held by deleted entities are listed only when
// includeDeleted is set.
func (t *txn) dependents(ctx context.Context, ref ir.EntityRef, includeDeleted bool) ([]dependentRef, error) {
	var out []dependentRef
	for _, dep := range t.l.registry.Dependents(ref.Type) {
		refs, err := t.tx.Referencing(ctx, dep.SourceType, dep.Key, ref.ID, includeDeleted)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if r == ref {
				continue
			}
			out = append(out, dependentRef{Target: r, Key: dep.Key})
		}
	}
	return out, nil
}

// clearReferences records one child edit per dependent, linked to d.
func (t *txn) clearReferences(ctx context.Context, d *ir.DestroyEdit, dependents []dependentRef, actor ir.ActorRef) ([]*ir.PropertyEdit, error) {
	children := make([]*ir.PropertyEdit, 0, len(dependents))
	for _, dep := range dependents {
		live, err := t.tx.Attr(ctx, dep.Target, dep.Key)
		if err != nil {
			return nil, err
		}
		child := &ir.PropertyEdit{
			EditHeader: ir.EditHeader{
				ID:        t.l.ids.Generate(),
				Target:    dep.Target,
				Actor:     actor,
				Timestamp: t.now,
				ParentID:  d.ID,
			},
			Key:      dep.Key,
			Previous: live,
			New:      ir.Null{},
		}
		if err := t.tx.InsertEdit(ctx, child); err != nil {
			return nil, err
		}
		if err := t.applyValue(ctx, dep.Target, dep.Key, live, ir.Null{}); err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// restore reverses an applied destroy: the entity becomes live again and
// each cleared child is restored unless its target is deleted, the type's
// redo guard refuses the current value, or a later edit superseded it.
func (t *txn) restore(ctx context.Context, d *ir.DestroyEdit, actor ir.ActorRef) (CascadeResult, error) {
	if d.Undone {
		return CascadeResult{}, notUndoableError(d, "destroy is already undone")
	}
	status, err := t.tx.Status(ctx, d.Target)
	if err != nil {
		return CascadeResult{}, err
	}
	if status != store.EntityDeleted {
		return CascadeResult{}, notUndoableError(d, "entity is not deleted")
	}

	if err := t.markUndone(ctx, d, &d.Reversal, true, actor); err != nil {
		return CascadeResult{}, err
	}
	if err := t.tx.SetDeleted(ctx, d.Target, false); err != nil {
		return CascadeResult{}, err
	}
	if err := t.refreshCounters(ctx, d.Target); err != nil {
		return CascadeResult{}, err
	}

	children, err := t.tx.Children(ctx, d.ID)
	if err != nil {
		return CascadeResult{}, err
	}

	result := CascadeResult{Destroy: d, Children: []*ir.PropertyEdit{}, Skipped: []SkippedChild{}}
	for _, child := range children {
		if child.Undone {
			continue
		}
		reason, live, err := t.restoreBlocker(ctx, child)
		if err != nil {
			return CascadeResult{}, err
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedChild{Edit: child, Reason: reason})
			continue
		}
		if err := t.markUndone(ctx, child, &child.Reversal, true, actor); err != nil {
			return CascadeResult{}, err
		}
		if err := t.applyValue(ctx, child.Target, child.Key, live, child.Previous); err != nil {
			return CascadeResult{}, err
		}
		result.Children = append(result.Children, child)
	}
	return result, nil
}

// restoreBlocker explains why child cannot be restored, or returns "" and
// the child's live value when it can.
func (t *txn) restoreBlocker(ctx context.Context, child *ir.PropertyEdit) (string, ir.Value, error) {
	status, err := t.tx.Status(ctx, child.Target)
	if err != nil {
		return "", nil, err
	}
	if status != store.EntityLive {
		return fmt.Sprintf("%s is deleted", child.Target), nil, nil
	}

	live, err := t.tx.Attr(ctx, child.Target, child.Key)
	if err != nil {
		return "", nil, err
	}
	typ, err := t.l.registry.Lookup(child.Target.Type)
	if err != nil {
		return "", nil, err
	}
	if !typ.AllowRedo(child.Key, live) {
		return fmt.Sprintf("%s was reassigned to %q", child.Key, ir.Text(live)), nil, nil
	}

	latest, err := t.latestFor(ctx, child.Target, child.Key)
	if err != nil {
		return "", nil, err
	}
	if latest == nil || latest.ID != child.ID {
		return fmt.Sprintf("%s was changed by a later edit", child.Key), nil, nil
	}
	return "", live, nil
}

// reclear re-applies a restored destroy: the entity is deleted again,
// restored children whose value is unchanged since the restore are cleared
// again, and references created since the restore are cleared with new
// children linked to the same destroy.
func (t *txn) reclear(ctx context.Context, d *ir.DestroyEdit, actor ir.ActorRef) (CascadeResult, error) {
	if !d.Undone {
		return CascadeResult{}, notRedoableError(d, "destroy is not undone")
	}
	status, err := t.tx.Status(ctx, d.Target)
	if err != nil {
		return CascadeResult{}, err
	}
	if status != store.EntityLive {
		return CascadeResult{}, notRedoableError(d, "entity is not live")
	}

	if err := t.markUndone(ctx, d, &d.Reversal, false, actor); err != nil {
		return CascadeResult{}, err
	}

	children, err := t.tx.Children(ctx, d.ID)
	if err != nil {
		return CascadeResult{}, err
	}

	result := CascadeResult{Destroy: d, Children: []*ir.PropertyEdit{}, Skipped: []SkippedChild{}}
	for _, child := range children {
		if !child.Undone {
			continue
		}
		reason, live, err := t.reclearBlocker(ctx, child)
		if err != nil {
			return CascadeResult{}, err
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedChild{Edit: child, Reason: reason})
			continue
		}
		if err := t.markUndone(ctx, child, &child.Reversal, false, actor); err != nil {
			return CascadeResult{}, err
		}
		if err := t.applyValue(ctx, child.Target, child.Key, live, child.New); err != nil {
			return CascadeResult{}, err
		}
		result.Children = append(result.Children, child)
	}

	// References made while the entity was restored.
	dependents, err := t.dependents(ctx, d.Target, true)
	if err != nil {
		return CascadeResult{}, err
	}
	fresh, err := t.clearReferences(ctx, d, dependents, actor)
	if err != nil {
		return CascadeResult{}, err
	}
	result.Children = append(result.Children, fresh...)

	if err := t.tx.SetDeleted(ctx, d.Target, true); err != nil {
		return CascadeResult{}, err
	}
	if err := t.refreshCounters(ctx, d.Target); err != nil {
		return CascadeResult{}, err
	}
	return result, nil
}

func (t *txn) reclearBlocker(ctx context.Context, child *ir.PropertyEdit) (string, ir.Value, error) {
	status, err := t.tx.Status(ctx, child.Target)
	if err != nil {
		return "", nil, err
	}
	if status != store.EntityLive {
		return fmt.Sprintf("%s is deleted", child.Target), nil, nil
	}

	latest, err := t.latestFor(ctx, child.Target, child.Key)
	if err != nil {
		return "", nil, err
	}
	if latest == nil || latest.ID != child.ID {
		return fmt.Sprintf("%s was changed by a later edit", child.Key), nil, nil
	}

	live, err := t.tx.Attr(ctx, child.Target, child.Key)
	if err != nil {
		return "", nil, err
	}
	if !ir.Equal(live, child.Previous) {
		return fmt.Sprintf("%s no longer holds %q", child.Key, ir.Text(child.Previous)), nil, nil
	}
	return "", live, nil
}

func (l *Ledger) reportCascade(op string, r CascadeResult) {
	cascadeChildren.WithLabelValues(op).Observe(float64(len(r.Children)))
	cascadeSkippedTotal.Add(float64(len(r.Skipped)))
	for _, s := range r.Skipped {
		l.logger.Warn("cascade child skipped",
			"op", op,
			"edit_id", s.Edit.ID,
			"target", s.Edit.Target.String(),
			"reason", s.Reason,
		)
	}
}
