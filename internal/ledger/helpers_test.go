package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
	"github.com/roach88/editledger/internal/testutil"
)

var (
	org1 = ir.Ref("organization", "o1")
	org2 = ir.Ref("organization", "o2")
	p1   = ir.Ref("project", "p1")
	p2   = ir.Ref("project", "p2")
)

type fixture struct {
	ctx   context.Context
	store *store.Store
	clock *testutil.ManualClock
	l     *Ledger
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: testutil.NewStore(t),
		clock: testutil.NewManualClock(testutil.Epoch),
	}
	opts = append([]Option{WithClock(f.clock), WithIDGenerator(NewFixedGenerator("edit"))}, opts...)
	f.l = New(f.store, testutil.BuiltinRegistry(t), opts...)
	return f
}

func (f *fixture) create(t *testing.T, ref ir.EntityRef) *ir.CreateEdit {
	t.Helper()
	ce, err := f.l.RecordCreation(f.ctx, ref, "admin")
	require.NoError(t, err)
	return ce
}

func (f *fixture) change(t *testing.T, ref ir.EntityRef, actor ir.ActorRef, key string, v ir.Value) ChangeResult {
	t.Helper()
	res, err := f.l.RecordChange(f.ctx, ref, actor, key, v)
	require.NoError(t, err)
	return res
}

func (f *fixture) value(t *testing.T, ref ir.EntityRef, key string) ir.Value {
	t.Helper()
	ent, err := f.l.Entity(f.ctx, ref)
	require.NoError(t, err)
	v, ok := ent.Attributes[key]
	if !ok {
		return ir.Null{}
	}
	return v
}

func (f *fixture) history(t *testing.T, ref ir.EntityRef) []ir.Edit {
	t.Helper()
	edits, err := f.l.History(f.ctx, ref, store.Page{})
	require.NoError(t, err)
	return edits
}

func (f *fixture) propertyEdit(t *testing.T, id string) *ir.PropertyEdit {
	t.Helper()
	e, err := f.l.Edit(f.ctx, id)
	require.NoError(t, err)
	pe, ok := e.(*ir.PropertyEdit)
	require.True(t, ok, "edit %s is %T", id, e)
	return pe
}

func (f *fixture) countEdits(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.DB().QueryRow("SELECT COUNT(*) FROM edits").Scan(&n))
	return n
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	divergences, err := f.l.Verify(f.ctx)
	require.NoError(t, err)
	require.Empty(t, divergences)
}

// seedDirectory creates o1 and o2, and p1 and p2 both owned by o1.
func (f *fixture) seedDirectory(t *testing.T) {
	t.Helper()
	for _, ref := range []ir.EntityRef{org1, org2, p1, p2} {
		f.create(t, ref)
	}
	f.change(t, p1, "bob", "organization_id", ir.String("o1"))
	f.change(t, p2, "bob", "organization_id", ir.String("o1"))
}

func assertValue(t *testing.T, want, got ir.Value) {
	t.Helper()
	require.True(t, ir.Equal(want, got), "value = %q, want %q", ir.Text(got), ir.Text(want))
}
