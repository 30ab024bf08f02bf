package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/editledger/internal/ir"
)

func TestRecordChange_Applied(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)

	res := f.change(t, p1, "bob", "name", ir.String("Ohloh"))

	assert.Equal(t, OutcomeApplied, res.Outcome)
	require.NotNil(t, res.Edit)
	assert.Equal(t, "name", res.Edit.Key)
	assertValue(t, ir.Null{}, res.Edit.Previous)
	assertValue(t, ir.String("Ohloh"), res.Edit.New)
	assert.False(t, res.Edit.Undone)
	assertValue(t, ir.String("Ohloh"), f.value(t, p1, "name"))
	f.requireConsistent(t)
}

func TestRecordChange_CoalescesWithinWindow(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	f.change(t, p1, "alice", "description", ir.String("original"))
	f.clock.Advance(time.Hour)

	first := f.change(t, p1, "bob", "description", ir.String("draft"))
	f.clock.Advance(10 * time.Minute)
	second := f.change(t, p1, "bob", "description", ir.String("final"))

	assert.Equal(t, OutcomeApplied, first.Outcome)
	assert.Equal(t, OutcomeMerged, second.Outcome)
	assert.Equal(t, first.Edit.ID, second.Edit.ID)

	pe := f.propertyEdit(t, first.Edit.ID)
	assertValue(t, ir.String("original"), pe.Previous)
	assertValue(t, ir.String("final"), pe.New)
	assert.True(t, pe.Timestamp.Equal(f.clock.Now()), "timestamp refreshed on merge")

	// create + alice + one coalesced bob record
	assert.Len(t, f.history(t, p1), 3)
	f.requireConsistent(t)
}

func TestRecordChange_OutsideWindowAppends(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)

	first := f.change(t, p1, "bob", "description", ir.String("a"))
	f.clock.Advance(31 * time.Minute)
	second := f.change(t, p1, "bob", "description", ir.String("b"))

	assert.Equal(t, OutcomeApplied, second.Outcome)
	assert.NotEqual(t, first.Edit.ID, second.Edit.ID)
	assertValue(t, ir.String("a"), second.Edit.Previous)
}

func TestRecordChange_DifferentActorAppends(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)

	f.change(t, p1, "bob", "description", ir.String("a"))
	res := f.change(t, p1, "alice", "description", ir.String("b"))

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assertValue(t, ir.String("a"), res.Edit.Previous)
}

func TestRecordChange_NoUndoneMerge(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)

	first := f.change(t, p1, "bob", "description", ir.String("a"))
	_, err := f.l.Undo(f.ctx, first.Edit.ID, "bob")
	require.NoError(t, err)

	res := f.change(t, p1, "bob", "description", ir.String("b"))
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.NotEqual(t, first.Edit.ID, res.Edit.ID)
	f.requireConsistent(t)
}

func TestRecordChange_MergeBackToPreviousRevertsRecord(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	f.change(t, p1, "alice", "description", ir.String("start"))
	f.clock.Advance(time.Hour)

	first := f.change(t, p1, "bob", "description", ir.String("typo"))
	res := f.change(t, p1, "bob", "description", ir.String("start"))

	assert.Equal(t, OutcomeMerged, res.Outcome)
	pe := f.propertyEdit(t, first.Edit.ID)
	assert.True(t, pe.Undone)
	assert.False(t, ir.Equal(pe.Previous, pe.New), "record never has previous == new")
	assertValue(t, ir.String("start"), f.value(t, p1, "description"))
	f.requireConsistent(t)
}

func TestRecordChange_Noop(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	f.change(t, p1, "bob", "name", ir.String("Ohloh"))
	before := f.countEdits(t)

	res := f.change(t, p1, "alice", "name", ir.String("  Ohloh "))

	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Nil(t, res.Edit)
	assert.Equal(t, before, f.countEdits(t))
}

func TestRecordChange_NoopOnEmpty(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)

	res := f.change(t, p1, "bob", "description", ir.String(""))
	assert.Equal(t, OutcomeNoop, res.Outcome)
}

func TestRecordChange_Validation(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)

	tests := []struct {
		name  string
		ref   ir.EntityRef
		actor ir.ActorRef
		key   string
		check func(error) bool
	}{
		{"untracked key", p1, "bob", "projects_count", IsValidation},
		{"unknown type", ir.Ref("person", "1"), "bob", "name", IsValidation},
		{"missing actor", p1, "", "name", IsValidation},
		{"missing entity", p2, "bob", "name", IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.l.RecordChange(f.ctx, tt.ref, tt.actor, tt.key, ir.String("x"))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestRecordChange_DeletedEntity(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	_, err := f.l.RecordDestruction(f.ctx, p1, "bob", CascadeClear)
	require.NoError(t, err)

	_, err = f.l.RecordChange(f.ctx, p1, "bob", "name", ir.String("x"))
	assert.True(t, IsNotFound(err), "unexpected error: %v", err)
}

func TestRecordChange_OrderingAcrossActors(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)

	actors := []ir.ActorRef{"alice", "bob", "carol"}
	values := []string{"one", "two", "three"}
	for i, actor := range actors {
		f.change(t, p1, actor, "description", ir.String(values[i]))
		f.clock.Advance(45 * time.Minute)
	}

	history := f.history(t, p1)
	require.Len(t, history, 4)

	assert.Equal(t, ir.KindCreate, history[0].Kind())
	var chain []*ir.PropertyEdit
	for _, e := range history {
		if pe, ok := e.(*ir.PropertyEdit); ok {
			chain = append(chain, pe)
		}
	}
	require.Len(t, chain, 3)
	for i, pe := range chain {
		assert.Equal(t, actors[i], pe.Actor)
		assertValue(t, ir.String(values[i]), pe.New)
		if i > 0 {
			assert.Greater(t, pe.Seq, chain[i-1].Seq)
			assertValue(t, chain[i-1].New, pe.Previous)
		}
	}
	assertValue(t, ir.Null{}, chain[0].Previous)
}

func TestRecordChange_UpdatesCounters(t *testing.T) {
	f := newFixture(t)
	f.seedDirectory(t)

	ent, err := f.l.Entity(f.ctx, org1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ent.Counters["projects_count"])

	f.change(t, p2, "alice", "organization_id", ir.String("o2"))

	ent, err = f.l.Entity(f.ctx, org1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ent.Counters["projects_count"])

	ent, err = f.l.Entity(f.ctx, org2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ent.Counters["projects_count"])
}
