package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/editledger/internal/ir"
)

func TestUndoRedo_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	f.change(t, p1, "alice", "url", ir.String("http://old.example.org"))
	f.clock.Advance(time.Hour)

	res := f.change(t, p1, "bob", "url", ir.String("http://new.example.org"))

	undone, err := f.l.Undo(f.ctx, res.Edit.ID, "carol")
	require.NoError(t, err)
	assertValue(t, ir.String("http://old.example.org"), f.value(t, p1, "url"))

	pe := undone.Edit.(*ir.PropertyEdit)
	assert.True(t, pe.Undone)
	assert.Equal(t, ir.ActorRef("carol"), pe.UndoneBy)
	require.NotNil(t, pe.UndoneAt)
	f.requireConsistent(t)

	redone, err := f.l.Redo(f.ctx, res.Edit.ID, "dave")
	require.NoError(t, err)
	assertValue(t, ir.String("http://new.example.org"), f.value(t, p1, "url"))
	assert.False(t, redone.Edit.(*ir.PropertyEdit).Undone)
	assert.Nil(t, redone.Cascade)
	f.requireConsistent(t)

	stored := f.propertyEdit(t, res.Edit.ID)
	assert.False(t, stored.Undone)
	assert.Equal(t, ir.ActorRef("dave"), stored.UndoneBy)
}

func TestUndo_PolicyRejectsEmptyName(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	res := f.change(t, p1, "bob", "name", ir.String("Ohloh"))

	_, err := f.l.Undo(f.ctx, res.Edit.ID, "bob")

	require.Error(t, err)
	assert.True(t, IsPolicyViolation(err), "unexpected error: %v", err)
	assertValue(t, ir.String("Ohloh"), f.value(t, p1, "name"))
	assert.False(t, f.propertyEdit(t, res.Edit.ID).Undone)
}

func TestUndo_PolicyAllowsNonEmptyPrevious(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	f.change(t, p1, "bob", "name", ir.String("Ohloh"))
	res := f.change(t, p1, "alice", "name", ir.String("Open Hub"))

	_, err := f.l.Undo(f.ctx, res.Edit.ID, "bob")
	require.NoError(t, err)
	assertValue(t, ir.String("Ohloh"), f.value(t, p1, "name"))
}

func TestUndo_StateErrors(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	res := f.change(t, p1, "bob", "description", ir.String("a"))

	_, err := f.l.Redo(f.ctx, res.Edit.ID, "bob")
	assert.True(t, IsNotRedoable(err), "redo of applied edit: %v", err)

	_, err = f.l.Undo(f.ctx, res.Edit.ID, "bob")
	require.NoError(t, err)

	_, err = f.l.Undo(f.ctx, res.Edit.ID, "bob")
	assert.True(t, IsNotUndoable(err), "second undo: %v", err)

	_, err = f.l.Undo(f.ctx, "missing", "bob")
	assert.True(t, IsNotFound(err), "unknown edit: %v", err)

	_, err = f.l.Undo(f.ctx, res.Edit.ID, "")
	assert.True(t, IsValidation(err), "missing actor: %v", err)
}

func TestUndo_SupersededEdit(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	older := f.change(t, p1, "bob", "description", ir.String("a"))
	f.change(t, p1, "alice", "description", ir.String("b"))

	_, err := f.l.Undo(f.ctx, older.Edit.ID, "bob")

	assert.True(t, IsNotUndoable(err), "unexpected error: %v", err)
	assertValue(t, ir.String("b"), f.value(t, p1, "description"))
}

func TestUndo_DeletedTarget(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	res := f.change(t, p1, "bob", "description", ir.String("a"))
	_, err := f.l.RecordDestruction(f.ctx, p1, "bob", CascadeClear)
	require.NoError(t, err)

	_, err = f.l.Undo(f.ctx, res.Edit.ID, "bob")
	assert.True(t, IsNotUndoable(err), "unexpected error: %v", err)
}

func TestRedo_GuardRefusesReassignedReference(t *testing.T) {
	f := newFixture(t)
	f.seedDirectory(t)
	f.clock.Advance(time.Hour)

	moved := f.change(t, p1, "alice", "organization_id", ir.String("o2"))
	_, err := f.l.Undo(f.ctx, moved.Edit.ID, "alice")
	require.NoError(t, err)
	assertValue(t, ir.String("o1"), f.value(t, p1, "organization_id"))

	_, err = f.l.Redo(f.ctx, moved.Edit.ID, "alice")
	assert.True(t, IsPolicyViolation(err), "unexpected error: %v", err)
	assertValue(t, ir.String("o1"), f.value(t, p1, "organization_id"))
}

func TestUndo_CascadeChildRefused(t *testing.T) {
	f := newFixture(t)
	f.seedDirectory(t)
	result, err := f.l.RecordDestruction(f.ctx, org1, "admin", CascadeClear)
	require.NoError(t, err)
	require.NotEmpty(t, result.Children)

	_, err = f.l.Undo(f.ctx, result.Children[0].ID, "admin")
	assert.True(t, IsNotUndoable(err), "unexpected error: %v", err)
}

func TestUndoCreate_DestroysEntity(t *testing.T) {
	f := newFixture(t)
	f.seedDirectory(t)
	ce, err := f.l.Edit(f.ctx, "edit-1") // o1's creation
	require.NoError(t, err)
	require.Equal(t, ir.KindCreate, ce.Kind())
	require.Equal(t, org1, ce.Head().Target)

	res, err := f.l.Undo(f.ctx, ce.Head().ID, "admin")
	require.NoError(t, err)
	require.NotNil(t, res.Cascade)
	assert.Len(t, res.Cascade.Children, 2)

	ent, err := f.l.Entity(f.ctx, org1)
	require.NoError(t, err)
	assert.Equal(t, "deleted", ent.Status.String())

	_, err = f.l.Undo(f.ctx, ce.Head().ID, "admin")
	assert.True(t, IsNotUndoable(err), "second undo of create: %v", err)

	_, err = f.l.Redo(f.ctx, ce.Head().ID, "admin")
	require.NoError(t, err)
	assertValue(t, ir.String("o1"), f.value(t, p1, "organization_id"))
	assertValue(t, ir.String("o1"), f.value(t, p2, "organization_id"))

	_, err = f.l.Redo(f.ctx, ce.Head().ID, "admin")
	assert.True(t, IsNotRedoable(err), "redo of live create: %v", err)
	f.requireConsistent(t)
}
