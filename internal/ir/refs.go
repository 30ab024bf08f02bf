package ir

import (
	"fmt"
	"strings"
)

// EntityRef identifies a tracked entity by type and id.
// Text form: "type/id" (e.g. "project/42").
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Ref is a shorthand constructor for EntityRef.
func Ref(entityType, id string) EntityRef {
	return EntityRef{Type: entityType, ID: id}
}

// String renders the reference as "type/id".
func (r EntityRef) String() string {
	return r.Type + "/" + r.ID
}

// IsZero reports whether the reference is unset.
func (r EntityRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// ParseEntityRef parses the "type/id" text form.
func ParseEntityRef(s string) (EntityRef, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok || typ == "" || id == "" {
		return EntityRef{}, fmt.Errorf("invalid entity reference %q: want type/id", s)
	}
	return EntityRef{Type: typ, ID: id}, nil
}

// ActorRef identifies who made a change (account id, "system", ...).
type ActorRef string
