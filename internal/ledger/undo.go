package ledger

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
)

// Undo reverts the edit with the given id on behalf of actor.
//
//   - PropertyEdit: the attribute returns to its previous value.
//   - CreateEdit: the entity is destroyed, clearing references to it.
//   - DestroyEdit: the entity is restored along with its cleared references.
//
// Cascade children cannot be undone on their own; undo their parent.
func (l *Ledger) Undo(ctx context.Context, editID string, actor ir.ActorRef) (Result, error) {
	return l.reverse(ctx, "Undo", editID, actor, true)
}

// Redo re-applies a reverted edit on behalf of actor.
//
//   - PropertyEdit: the attribute returns to the edit's new value.
//   - CreateEdit: the latest destroy of the entity is undone.
//   - DestroyEdit: the entity is destroyed again, re-clearing references.
func (l *Ledger) Redo(ctx context.Context, editID string, actor ir.ActorRef) (Result, error) {
	return l.reverse(ctx, "Redo", editID, actor, false)
}

func (l *Ledger) reverse(ctx context.Context, op, editID string, actor ir.ActorRef, undo bool) (Result, error) {
	if editID == "" {
		return Result{}, validationError(ir.EntityRef{}, "", "edit id is required")
	}
	if actor == "" {
		return Result{}, &Error{Code: ErrCodeValidation, Message: "actor is required", EditID: editID}
	}

	var result Result
	attrs := []attribute.KeyValue{
		attribute.String("edit_id", editID),
		attribute.String("actor", string(actor)),
	}
	err := l.run(ctx, op, attrs, func(ctx context.Context, t *txn) error {
		e, err := t.tx.Edit(ctx, editID)
		if isStoreNotFound(err) {
			return notFoundError(ir.EntityRef{}, editID, "edit does not exist")
		}
		if err != nil {
			return err
		}
		if undo {
			result, err = t.undo(ctx, e, actor)
		} else {
			result, err = t.redo(ctx, e, actor)
		}
		return err
	})

	metricOp := "redo"
	if undo {
		metricOp = "undo"
	}
	undoRedoTotal.WithLabelValues(metricOp, resultLabel(err)).Inc()
	if err != nil {
		return Result{}, err
	}

	if result.Cascade != nil {
		l.reportCascade(metricOp, *result.Cascade)
	}
	l.logger.Info("reversed edit",
		"op", metricOp,
		"edit_id", editID,
		"target", result.Edit.Head().Target.String(),
		"actor", actor,
	)
	return result, nil
}

func (t *txn) undo(ctx context.Context, e ir.Edit, actor ir.ActorRef) (Result, error) {
	switch v := e.(type) {
	case *ir.PropertyEdit:
		if err := t.undoProperty(ctx, v, actor); err != nil {
			return Result{}, err
		}
		return Result{Edit: v}, nil

	case *ir.CreateEdit:
		status, err := t.tx.Status(ctx, v.Target)
		if err != nil {
			return Result{}, err
		}
		if status != store.EntityLive {
			return Result{}, notUndoableError(v, "entity is already deleted")
		}
		cascade, err := t.destroy(ctx, v.Target, actor, CascadeClear)
		if err != nil {
			return Result{}, err
		}
		return Result{Edit: v, Cascade: &cascade}, nil

	case *ir.DestroyEdit:
		cascade, err := t.restore(ctx, v, actor)
		if err != nil {
			return Result{}, err
		}
		return Result{Edit: v, Cascade: &cascade}, nil

	default:
		return Result{}, notUndoableError(e, "unknown edit kind %s", e.Kind())
	}
}

func (t *txn) redo(ctx context.Context, e ir.Edit, actor ir.ActorRef) (Result, error) {
	switch v := e.(type) {
	case *ir.PropertyEdit:
		if err := t.redoProperty(ctx, v, actor); err != nil {
			return Result{}, err
		}
		return Result{Edit: v}, nil

	case *ir.CreateEdit:
		status, err := t.tx.Status(ctx, v.Target)
		if err != nil {
			return Result{}, err
		}
		if status != store.EntityDeleted {
			return Result{}, notRedoableError(v, "entity is live")
		}
		d, err := t.tx.LatestDestroyEdit(ctx, v.Target)
		if isStoreNotFound(err) {
			return Result{}, notRedoableError(v, "no applied destroy to reverse")
		}
		if err != nil {
			return Result{}, err
		}
		cascade, err := t.restore(ctx, d, actor)
		if err != nil {
			return Result{}, err
		}
		return Result{Edit: v, Cascade: &cascade}, nil

	case *ir.DestroyEdit:
		cascade, err := t.reclear(ctx, v, actor)
		if err != nil {
			return Result{}, err
		}
		return Result{Edit: v, Cascade: &cascade}, nil

	default:
		return Result{}, notRedoableError(e, "unknown edit kind %s", e.Kind())
	}
}

func (t *txn) undoProperty(ctx context.Context, pe *ir.PropertyEdit, actor ir.ActorRef) error {
	if pe.ParentID != "" {
		return notUndoableError(pe, "edit is part of cascade %s; undo the parent instead", pe.ParentID)
	}
	if pe.Undone {
		return notUndoableError(pe, "edit is already undone")
	}
	live, err := t.checkReversible(ctx, pe, notUndoableError)
	if err != nil {
		return err
	}

	typ, err := t.l.registry.Lookup(pe.Target.Type)
	if err != nil {
		return err
	}
	if ir.IsEmpty(pe.Previous) && !typ.AllowUndoToNil(pe.Key) {
		return policyError(pe, "%s may not be undone to empty", pe.Key)
	}

	if err := t.markUndone(ctx, pe, &pe.Reversal, true, actor); err != nil {
		return err
	}
	return t.applyValue(ctx, pe.Target, pe.Key, live, pe.Previous)
}

func (t *txn) redoProperty(ctx context.Context, pe *ir.PropertyEdit, actor ir.ActorRef) error {
	if pe.ParentID != "" {
		return notRedoableError(pe, "edit is part of cascade %s; redo the parent instead", pe.ParentID)
	}
	if !pe.Undone {
		return notRedoableError(pe, "edit is not undone")
	}
	live, err := t.checkReversible(ctx, pe, notRedoableError)
	if err != nil {
		return err
	}

	typ, err := t.l.registry.Lookup(pe.Target.Type)
	if err != nil {
		return err
	}
	if !typ.AllowRedo(pe.Key, live) {
		return policyError(pe, "%s may not be redone while it holds %q", pe.Key, ir.Text(live))
	}

	if err := t.markUndone(ctx, pe, &pe.Reversal, false, actor); err != nil {
		return err
	}
	return t.applyValue(ctx, pe.Target, pe.Key, live, pe.New)
}

// checkReversible refuses edits on deleted targets and edits that a later
// edit of the same key has superseded, and returns the live value.
func (t *txn) checkReversible(ctx context.Context, pe *ir.PropertyEdit, refuse func(ir.Edit, string, ...any) *Error) (ir.Value, error) {
	status, err := t.tx.Status(ctx, pe.Target)
	if err != nil {
		return nil, err
	}
	if status != store.EntityLive {
		return nil, refuse(pe, "%s is deleted", pe.Target)
	}

	latest, err := t.latestFor(ctx, pe.Target, pe.Key)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.ID != pe.ID {
		return nil, refuse(pe, "a later edit of %s exists", pe.Key)
	}

	return t.tx.Attr(ctx, pe.Target, pe.Key)
}
