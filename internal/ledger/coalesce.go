package ledger

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/editledger/internal/entity"
	"github.com/roach88/editledger/internal/ir"
)

// RecordChange sets key on ref to value on behalf of actor and records it.
//
// The value is normalized first. If it equals the live value nothing is
// written (OutcomeNoop). If the latest record for (ref, key) is still
// applied, was made by the same actor inside the type's merge window, and
// still describes the live value, that record is amended (OutcomeMerged).
// Otherwise a new record is appended (OutcomeApplied).
func (l *Ledger) RecordChange(ctx context.Context, ref ir.EntityRef, actor ir.ActorRef, key string, value ir.Value) (ChangeResult, error) {
	typ, err := l.lookup(ref, actor)
	if err != nil {
		return ChangeResult{}, err
	}
	if !typ.Tracks(key) {
		return ChangeResult{}, validationError(ref, key, "key is not tracked for %s", ref.Type)
	}
	value = ir.Normalize(value)

	var result ChangeResult
	attrs := append(refAttrs(ref, actor), attribute.String("key", key))
	err = l.run(ctx, "RecordChange", attrs, func(ctx context.Context, t *txn) error {
		r, err := t.change(ctx, typ, ref, actor, key, value)
		result = r
		return err
	})
	if err != nil {
		return ChangeResult{}, err
	}

	editsTotal.WithLabelValues(string(ir.KindProperty), string(result.Outcome)).Inc()
	if result.Edit != nil {
		l.logger.Info("recorded change",
			"edit_id", result.Edit.ID,
			"target", ref.String(),
			"key", key,
			"outcome", result.Outcome,
		)
	}
	return result, nil
}

func (t *txn) change(ctx context.Context, typ *entity.Type, ref ir.EntityRef, actor ir.ActorRef, key string, value ir.Value) (ChangeResult, error) {
	if err := t.requireLive(ctx, ref); err != nil {
		return ChangeResult{}, err
	}

	live, err := t.tx.Attr(ctx, ref, key)
	if err != nil {
		return ChangeResult{}, err
	}
	if ir.Equal(live, value) {
		return ChangeResult{Outcome: OutcomeNoop}, nil
	}

	latest, err := t.latestFor(ctx, ref, key)
	if err != nil {
		return ChangeResult{}, err
	}
	if t.amendable(typ, latest, actor, live) {
		if ir.Equal(value, latest.Previous) {
			// Changing back to where the record started: the record now
			// describes a reverted change rather than a no-op one.
			if err := t.markUndone(ctx, latest, &latest.Reversal, true, actor); err != nil {
				return ChangeResult{}, err
			}
		} else {
			if err := t.tx.AmendEdit(ctx, latest.ID, value, t.now); err != nil {
				return ChangeResult{}, err
			}
			latest.New = value
			latest.Timestamp = t.now
		}
		if err := t.applyValue(ctx, ref, key, live, value); err != nil {
			return ChangeResult{}, err
		}
		return ChangeResult{Outcome: OutcomeMerged, Edit: latest}, nil
	}

	pe := &ir.PropertyEdit{
		EditHeader: ir.EditHeader{
			ID:        t.l.ids.Generate(),
			Target:    ref,
			Actor:     actor,
			Timestamp: t.now,
		},
		Key:      key,
		Previous: live,
		New:      value,
	}
	if err := t.tx.InsertEdit(ctx, pe); err != nil {
		return ChangeResult{}, err
	}
	if err := t.applyValue(ctx, ref, key, live, value); err != nil {
		return ChangeResult{}, err
	}
	return ChangeResult{Outcome: OutcomeApplied, Edit: pe}, nil
}

// amendable reports whether latest may absorb a new value from actor.
func (t *txn) amendable(typ *entity.Type, latest *ir.PropertyEdit, actor ir.ActorRef, live ir.Value) bool {
	if latest == nil || latest.Undone || latest.ParentID != "" {
		return false
	}
	if latest.Actor != actor {
		return false
	}
	if t.now.Sub(latest.Timestamp) > typ.MergeWindow() {
		return false
	}
	return ir.Equal(latest.New, live)
}
