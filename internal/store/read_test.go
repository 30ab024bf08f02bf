package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/roach88/editledger/internal/ir"
)

func TestReadEdit_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadEdit(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadEdit() error = %v, want ErrNotFound", err)
	}
}

func TestListEdits_CreationOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		insertTestEdit(t, s, createTestPropertyEdit(fmt.Sprintf("e%d", i), testRef, "name",
			ir.String(fmt.Sprintf("v%d", i-1)), ir.String(fmt.Sprintf("v%d", i))))
	}
	insertTestEdit(t, s, createTestPropertyEdit("other", ir.Ref("project", "p2"), "name", ir.Null{}, ir.String("x")))

	edits, err := s.ListEdits(ctx, testRef, Page{})
	if err != nil {
		t.Fatalf("ListEdits() failed: %v", err)
	}
	if len(edits) != 5 {
		t.Fatalf("ListEdits() returned %d edits, want 5", len(edits))
	}
	for i, e := range edits {
		want := fmt.Sprintf("e%d", i+1)
		if e.Head().ID != want {
			t.Errorf("edits[%d] = %s, want %s", i, e.Head().ID, want)
		}
		if i > 0 {
			prev := edits[i-1].(*ir.PropertyEdit)
			if cur := e.(*ir.PropertyEdit); !ir.Equal(prev.New, cur.Previous) {
				t.Errorf("edits[%d].Previous = %q, want %q", i, ir.Text(cur.Previous), ir.Text(prev.New))
			}
		}
	}
}

func TestListEdits_Pagination(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		insertTestEdit(t, s, createTestPropertyEdit(fmt.Sprintf("e%d", i), testRef, "name", ir.Null{}, ir.Int(int64(i))))
	}

	edits, err := s.ListEdits(ctx, testRef, Page{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListEdits() failed: %v", err)
	}
	if len(edits) != 2 {
		t.Fatalf("ListEdits() returned %d edits, want 2", len(edits))
	}
	if edits[0].Head().ID != "e2" || edits[1].Head().ID != "e3" {
		t.Errorf("page = [%s %s], want [e2 e3]", edits[0].Head().ID, edits[1].Head().ID)
	}
}

func TestListEdits_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	edits, err := s.ListEdits(context.Background(), testRef, Page{})
	if err != nil {
		t.Fatalf("ListEdits() failed: %v", err)
	}
	if edits == nil {
		t.Error("ListEdits() returned nil, want empty slice")
	}
}

func TestLatestPropertyEdit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertTestEdit(t, s, createTestPropertyEdit("e1", testRef, "name", ir.Null{}, ir.String("a")))
	insertTestEdit(t, s, createTestPropertyEdit("e2", testRef, "url", ir.Null{}, ir.String("u")))
	insertTestEdit(t, s, createTestPropertyEdit("e3", testRef, "name", ir.String("a"), ir.String("b")))

	mustTx(t, s, func(tx *Tx) error {
		pe, err := tx.LatestPropertyEdit(ctx, testRef, "name")
		if err != nil {
			return err
		}
		if pe.ID != "e3" {
			t.Errorf("LatestPropertyEdit(name) = %s, want e3", pe.ID)
		}

		_, err = tx.LatestPropertyEdit(ctx, testRef, "description")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("LatestPropertyEdit(description) error = %v, want ErrNotFound", err)
		}
		return nil
	})
}

func TestLatestDestroyEdit_SkipsUndone(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := &ir.DestroyEdit{EditHeader: ir.EditHeader{ID: "d1", Target: testOrg, Actor: "bob", Timestamp: testTime}}
	first.Undone = true
	insertTestEdit(t, s, first)

	mustTx(t, s, func(tx *Tx) error {
		if _, err := tx.LatestDestroyEdit(ctx, testOrg); !errors.Is(err, ErrNotFound) {
			t.Errorf("LatestDestroyEdit() error = %v, want ErrNotFound", err)
		}
		return nil
	})

	insertTestEdit(t, s, &ir.DestroyEdit{EditHeader: ir.EditHeader{ID: "d2", Target: testOrg, Actor: "bob", Timestamp: testTime}})

	mustTx(t, s, func(tx *Tx) error {
		d, err := tx.LatestDestroyEdit(ctx, testOrg)
		if err != nil {
			return err
		}
		if d.ID != "d2" {
			t.Errorf("LatestDestroyEdit() = %s, want d2", d.ID)
		}
		return nil
	})
}

func TestReadAllEdits_SeqOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertTestEdit(t, s, createTestPropertyEdit("b", testRef, "name", ir.Null{}, ir.String("1")))
	insertTestEdit(t, s, createTestPropertyEdit("a", testRef, "name", ir.String("1"), ir.String("2")))

	edits, err := s.ReadAllEdits(ctx)
	if err != nil {
		t.Fatalf("ReadAllEdits() failed: %v", err)
	}
	if len(edits) != 2 || edits[0].Head().ID != "b" || edits[1].Head().ID != "a" {
		t.Errorf("ReadAllEdits() order wrong: %v", edits)
	}
}
