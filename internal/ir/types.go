package ir

import (
	"fmt"
	"time"
)

// EditKind discriminates the edit record variants.
type EditKind string

const (
	KindCreate   EditKind = "create"
	KindProperty EditKind = "property"
	KindDestroy  EditKind = "destroy"
)

// Edit is a sealed interface over the three edit record variants.
// Engines switch exhaustively on *CreateEdit, *PropertyEdit and *DestroyEdit.
type Edit interface {
	Head() *EditHeader
	Kind() EditKind
	sealedEdit()
}

// EditHeader holds the fields every edit record carries.
type EditHeader struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"` // Store-assigned, strictly increasing
	Target    EntityRef `json:"target"`
	Actor     ActorRef  `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	ParentID  string    `json:"parent_id,omitempty"` // Cascade back-reference
}

// Reversal records who last flipped an edit's undone state.
type Reversal struct {
	Undone   bool       `json:"undone"`
	UndoneBy ActorRef   `json:"undone_by,omitempty"`
	UndoneAt *time.Time `json:"undone_at,omitempty"`
}

// CreateEdit records that the target entity was created.
// It has no undo state of its own.
type CreateEdit struct {
	EditHeader
}

// PropertyEdit records a change to a single attribute.
type PropertyEdit struct {
	EditHeader
	Key      string `json:"key"`
	Previous Value  `json:"-"`
	New      Value  `json:"-"`
	Reversal
}

// DestroyEdit records that the target entity was removed.
type DestroyEdit struct {
	EditHeader
	Reversal
}

func (e *CreateEdit) Head() *EditHeader   { return &e.EditHeader }
func (e *PropertyEdit) Head() *EditHeader { return &e.EditHeader }
func (e *DestroyEdit) Head() *EditHeader  { return &e.EditHeader }

func (*CreateEdit) Kind() EditKind   { return KindCreate }
func (*PropertyEdit) Kind() EditKind { return KindProperty }
func (*DestroyEdit) Kind() EditKind  { return KindDestroy }

func (*CreateEdit) sealedEdit()   {}
func (*PropertyEdit) sealedEdit() {}
func (*DestroyEdit) sealedEdit()  {}

// Record is the persisted layout of an edit, exposed verbatim for callers
// that need compatibility with stored history.
type Record struct {
	ID            string     `json:"id"`
	Seq           int64      `json:"seq"`
	Kind          EditKind   `json:"kind"`
	TargetType    string     `json:"target_type"`
	TargetID      string     `json:"target_id"`
	Actor         ActorRef   `json:"actor"`
	Key           *string    `json:"key"`
	PreviousValue any        `json:"previous_value"`
	NewValue      any        `json:"new_value"`
	Timestamp     time.Time  `json:"timestamp"`
	Undone        bool       `json:"undone"`
	UndoneBy      ActorRef   `json:"undone_by,omitempty"`
	UndoneAt      *time.Time `json:"undone_at,omitempty"`
	ParentID      *string    `json:"parent_id"`
}

// Flatten converts an edit variant to its persisted layout.
func Flatten(e Edit) Record {
	h := e.Head()
	rec := Record{
		ID:         h.ID,
		Seq:        h.Seq,
		Kind:       e.Kind(),
		TargetType: h.Target.Type,
		TargetID:   h.Target.ID,
		Actor:      h.Actor,
		Timestamp:  h.Timestamp,
	}
	if h.ParentID != "" {
		parent := h.ParentID
		rec.ParentID = &parent
	}

	switch v := e.(type) {
	case *CreateEdit:
	case *PropertyEdit:
		key := v.Key
		rec.Key = &key
		rec.PreviousValue = JSONValue(v.Previous)
		rec.NewValue = JSONValue(v.New)
		rec.Undone = v.Undone
		rec.UndoneBy = v.UndoneBy
		rec.UndoneAt = v.UndoneAt
	case *DestroyEdit:
		rec.Undone = v.Undone
		rec.UndoneBy = v.UndoneBy
		rec.UndoneAt = v.UndoneAt
	}
	return rec
}

// Describe renders a one-line summary of an edit for logs and text output.
func Describe(e Edit) string {
	h := e.Head()
	switch v := e.(type) {
	case *CreateEdit:
		return fmt.Sprintf("#%d create %s by %s", h.Seq, h.Target, h.Actor)
	case *PropertyEdit:
		state := "applied"
		if v.Undone {
			state = "undone"
		}
		return fmt.Sprintf("#%d %s.%s %q -> %q by %s (%s)",
			h.Seq, h.Target, v.Key, Text(v.Previous), Text(v.New), h.Actor, state)
	case *DestroyEdit:
		state := "applied"
		if v.Undone {
			state = "undone"
		}
		return fmt.Sprintf("#%d destroy %s by %s (%s)", h.Seq, h.Target, h.Actor, state)
	default:
		return fmt.Sprintf("#%d unknown edit", h.Seq)
	}
}
