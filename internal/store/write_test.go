package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/editledger/internal/ir"
)

func TestInsertEdit_AssignsIncreasingSeq(t *testing.T) {
	s := createTestStore(t)

	edits := []ir.Edit{
		&ir.CreateEdit{EditHeader: ir.EditHeader{ID: "c1", Target: testRef, Actor: "bob", Timestamp: testTime}},
		createTestPropertyEdit("e1", testRef, "name", ir.Null{}, ir.String("Ohloh")),
		createTestPropertyEdit("e2", testRef, "url", ir.Null{}, ir.String("http://example.org")),
	}
	for _, e := range edits {
		insertTestEdit(t, s, e)
	}

	for i, e := range edits {
		if got := e.Head().Seq; got != int64(i+1) {
			t.Errorf("edit %s seq = %d, want %d", e.Head().ID, got, i+1)
		}
	}
}

func TestInsertEdit_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	undoneAt := testTime.Add(time.Minute)
	pe := createTestPropertyEdit("e1", testRef, "organization_id", ir.String("o1"), ir.Null{})
	pe.Reversal = ir.Reversal{Undone: true, UndoneBy: "alice", UndoneAt: &undoneAt}
	insertTestEdit(t, s, pe)

	got, err := s.ReadEdit(ctx, "e1")
	if err != nil {
		t.Fatalf("ReadEdit() failed: %v", err)
	}
	read, ok := got.(*ir.PropertyEdit)
	if !ok {
		t.Fatalf("ReadEdit() returned %T, want *ir.PropertyEdit", got)
	}
	if read.Key != "organization_id" {
		t.Errorf("Key = %q, want organization_id", read.Key)
	}
	if !ir.Equal(read.Previous, ir.String("o1")) {
		t.Errorf("Previous = %#v, want o1", read.Previous)
	}
	if _, isNull := read.New.(ir.Null); !isNull {
		t.Errorf("New = %#v, want Null", read.New)
	}
	if !read.Timestamp.Equal(testTime) {
		t.Errorf("Timestamp = %v, want %v", read.Timestamp, testTime)
	}
	if !read.Undone || read.UndoneBy != "alice" || read.UndoneAt == nil || !read.UndoneAt.Equal(undoneAt) {
		t.Errorf("Reversal = %+v, want undone by alice at %v", read.Reversal, undoneAt)
	}
}

func TestInsertEdit_DuplicateIDFails(t *testing.T) {
	s := createTestStore(t)
	insertTestEdit(t, s, createTestPropertyEdit("e1", testRef, "name", ir.Null{}, ir.String("a")))

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.InsertEdit(context.Background(), createTestPropertyEdit("e1", testRef, "name", ir.Null{}, ir.String("b")))
	})
	if err == nil {
		t.Error("expected error inserting duplicate edit id")
	}
}

func TestInsertEdit_ChildBeforeParent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustTx(t, s, func(tx *Tx) error {
		child := createTestPropertyEdit("child", ir.Ref("project", "p2"), "organization_id", ir.String("o1"), ir.Null{})
		child.ParentID = "destroy"
		if err := tx.InsertEdit(ctx, child); err != nil {
			return err
		}
		return tx.InsertEdit(ctx, &ir.DestroyEdit{EditHeader: ir.EditHeader{
			ID: "destroy", Target: testOrg, Actor: "bob", Timestamp: testTime,
		}})
	})

	children, err := s.ReadChildren(ctx, "destroy")
	if err != nil {
		t.Fatalf("ReadChildren() failed: %v", err)
	}
	if len(children) != 1 || children[0].ID != "child" {
		t.Fatalf("ReadChildren() = %v, want [child]", children)
	}
	if children[0].Seq >= 2 {
		t.Errorf("child seq = %d, want lower than its parent", children[0].Seq)
	}
}

func TestInsertEdit_MissingParentFailsAtCommit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Tx) error {
		child := createTestPropertyEdit("child", testRef, "organization_id", ir.String("o1"), ir.Null{})
		child.ParentID = "nope"
		return tx.InsertEdit(ctx, child)
	})
	if err == nil {
		t.Fatal("expected foreign key failure for missing parent")
	}

	if _, err := s.ReadEdit(ctx, "child"); !errors.Is(err, ErrNotFound) {
		t.Errorf("child persisted after failed commit: err = %v", err)
	}
}

func TestAmendEdit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertTestEdit(t, s, createTestPropertyEdit("e1", testRef, "name", ir.Null{}, ir.String("a")))

	later := testTime.Add(10 * time.Minute)
	mustTx(t, s, func(tx *Tx) error {
		return tx.AmendEdit(ctx, "e1", ir.String("b"), later)
	})

	got, err := s.ReadEdit(ctx, "e1")
	if err != nil {
		t.Fatalf("ReadEdit() failed: %v", err)
	}
	pe := got.(*ir.PropertyEdit)
	if !ir.Equal(pe.New, ir.String("b")) {
		t.Errorf("New = %v, want b", ir.Text(pe.New))
	}
	if !pe.Timestamp.Equal(later) {
		t.Errorf("Timestamp = %v, want %v", pe.Timestamp, later)
	}
	if pe.Seq != 1 {
		t.Errorf("Seq = %d, want 1 (amend keeps position)", pe.Seq)
	}
}

func TestAmendEdit_UndoneConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pe := createTestPropertyEdit("e1", testRef, "name", ir.Null{}, ir.String("a"))
	pe.Undone = true
	insertTestEdit(t, s, pe)

	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.AmendEdit(ctx, "e1", ir.String("b"), testTime)
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("AmendEdit() error = %v, want ErrConflict", err)
	}
}

func TestSetReversal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertTestEdit(t, s, createTestPropertyEdit("e1", testRef, "name", ir.Null{}, ir.String("a")))

	mustTx(t, s, func(tx *Tx) error {
		return tx.SetReversal(ctx, "e1", true, "alice", testTime)
	})

	// A second undo of the same edit must not match.
	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.SetReversal(ctx, "e1", true, "carol", testTime)
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second SetReversal() error = %v, want ErrConflict", err)
	}

	got, err := s.ReadEdit(ctx, "e1")
	if err != nil {
		t.Fatalf("ReadEdit() failed: %v", err)
	}
	pe := got.(*ir.PropertyEdit)
	if !pe.Undone || pe.UndoneBy != "alice" {
		t.Errorf("Reversal = %+v, want undone by alice", pe.Reversal)
	}

	mustTx(t, s, func(tx *Tx) error {
		return tx.SetReversal(ctx, "e1", false, "bob", testTime)
	})
	got, _ = s.ReadEdit(ctx, "e1")
	if got.(*ir.PropertyEdit).Undone {
		t.Error("edit still undone after redo")
	}
}

func TestSetReversal_CreateEditRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertTestEdit(t, s, &ir.CreateEdit{EditHeader: ir.EditHeader{ID: "c1", Target: testRef, Actor: "bob", Timestamp: testTime}})

	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.SetReversal(ctx, "c1", true, "bob", testTime)
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("SetReversal(create) error = %v, want ErrConflict", err)
	}
}
