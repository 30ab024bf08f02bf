package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
)

func TestConcurrentWriters_LeaveConsistentChain(t *testing.T) {
	f := newFixture(t, WithIDGenerator(UUIDv7Generator{}))
	f.create(t, p1)

	const writers = 8
	g, ctx := errgroup.WithContext(f.ctx)
	for i := 0; i < writers; i++ {
		actor := ir.ActorRef(fmt.Sprintf("actor-%d", i))
		value := ir.String(fmt.Sprintf("value-%d", i))
		g.Go(func() error {
			res, err := f.l.RecordChange(ctx, p1, actor, "description", value)
			if err != nil {
				return err
			}
			if res.Outcome != OutcomeApplied {
				return fmt.Errorf("%s: outcome %s", actor, res.Outcome)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	history := f.history(t, p1)
	require.Len(t, history, writers+1)

	var prev ir.Value = ir.Null{}
	for _, e := range history {
		pe, ok := e.(*ir.PropertyEdit)
		if !ok {
			continue
		}
		assertValue(t, prev, pe.Previous)
		prev = pe.New
	}
	assertValue(t, prev, f.value(t, p1, "description"))
	f.requireConsistent(t)
}

func TestRecordCreation(t *testing.T) {
	f := newFixture(t)

	ce := f.create(t, p1)
	assert.Equal(t, "edit-1", ce.ID)
	assert.Equal(t, int64(1), ce.Seq)
	assert.Equal(t, ir.ActorRef("admin"), ce.Actor)

	_, err := f.l.RecordCreation(f.ctx, p1, "admin")
	assert.True(t, IsValidation(err), "duplicate create: %v", err)

	_, err = f.l.RecordCreation(f.ctx, ir.Ref("person", "1"), "admin")
	assert.True(t, IsValidation(err), "unknown type: %v", err)
}

func TestHistory_Pagination(t *testing.T) {
	f := newFixture(t)
	f.create(t, p1)
	f.change(t, p1, "alice", "description", ir.String("a"))
	f.change(t, p1, "bob", "description", ir.String("b"))

	page, err := f.l.History(f.ctx, p1, store.Page{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ir.KindCreate, page[0].Kind())

	page, err = f.l.History(f.ctx, p1, store.Page{Limit: 5, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ir.ActorRef("bob"), page[0].Head().Actor)
}

func TestEntity_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.Entity(f.ctx, p1)
	assert.True(t, IsNotFound(err), "unexpected error: %v", err)

	_, err = f.l.Edit(f.ctx, "missing")
	assert.True(t, IsNotFound(err), "unexpected error: %v", err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"conflict", fmt.Errorf("set reversal: %w", store.ErrConflict), ErrCodeConcurrentModification},
		{"deadline", context.DeadlineExceeded, ErrCodeConcurrentModification},
		{"not found", fmt.Errorf("edit x: %w", store.ErrNotFound), ErrCodeNotFound},
		{"other", errors.New("disk I/O error"), ErrCodeStorage},
		{"ledger error", &Error{Code: ErrCodePolicyViolation, Message: "no"}, ErrCodePolicyViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.Equal(t, tt.want, CodeOf(err))
			assert.True(t, errors.Is(err, tt.err), "cause is preserved")
		})
	}
	assert.NoError(t, classify(nil))
}

func TestWithRetry_RetriesConcurrentModification(t *testing.T) {
	f := newFixture(t, WithMaxRetries(2))

	tests := []struct {
		name         string
		failures     int
		err          error
		wantAttempts int
		wantErr      bool
	}{
		{"conflict then success", 1, fmt.Errorf("amend edit: %w", store.ErrConflict), 2, false},
		{"conflict exhausts budget", 10, fmt.Errorf("amend edit: %w", store.ErrConflict), 3, true},
		{"validation is permanent", 10, validationError(p1, "name", "bad"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := f.l.withRetry(f.ctx, "test", func(context.Context) error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Code: ErrCodeNotUndoable, Message: "edit is already undone", EditID: "e1"}
	assert.Equal(t, "NOT_UNDOABLE: edit is already undone (edit=e1)", err.Error())

	err = &Error{Code: ErrCodeValidation, Message: "key is not tracked", Target: p1, Key: "x"}
	assert.Equal(t, "VALIDATION: key is not tracked (target=project/p1, key=x)", err.Error())

	wrapped := fmt.Errorf("cli: %w", err)
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsNotFound(wrapped))
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("edit", "first")
	assert.Equal(t, "first", g.Generate())
	assert.Equal(t, "edit-2", g.Generate())
	assert.Equal(t, "edit-3", g.Generate())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	var g UUIDv7Generator
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := g.Generate()
		require.Len(t, id, 36)
		require.False(t, seen[id])
		seen[id] = true
	}
}
