package entity

import (
	"time"

	"github.com/roach88/editledger/internal/ir"
)

// DefaultMergeWindow applies when a TypeSpec leaves MergeWindow unset.
const DefaultMergeWindow = 30 * time.Minute

// TypeSpec is the static configuration of one editable entity type.
type TypeSpec struct {
	Name        string
	Keys        []string      // Tracked attribute keys, in display order
	MergeWindow time.Duration // Zero means DefaultMergeWindow
	Required    []string      // Keys that may not be undone to empty
	RedoGuards  map[string]string
	References  []Reference
	Counters    []Counter
}

// Reference declares that Key holds the id of an entity of type Target.
// Destroying the target clears Key on every live referencing entity.
type Reference struct {
	Key    string
	Target string
}

// Counter declares a derived count stored on the owning type: the number of
// live Source entities whose Key references the owner.
type Counter struct {
	Name   string
	Source string
	Key    string
}

// Dependent is a (source type, key) pair that references some target type.
type Dependent struct {
	SourceType string
	Key        string
}

// CounterRef locates a counter affected by a change to (source type, key).
type CounterRef struct {
	OwnerType string
	Counter
}

// RedoGuard decides whether a reverted value may be re-applied given the
// attribute's current live value.
type RedoGuard func(current ir.Value) bool

// RedoGuards is the lookup table of named redo guards usable in a TypeSpec.
var RedoGuards = map[string]RedoGuard{
	"always": func(ir.Value) bool { return true },
	// Refuse to overwrite a value someone has set since.
	"when_empty": func(current ir.Value) bool { return ir.IsEmpty(current) },
}

// RequiredKeys returns an undo-to-nil predicate that refuses the given keys.
func RequiredKeys(keys ...string) func(key string) bool {
	required := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		required[k] = struct{}{}
	}
	return func(key string) bool {
		_, ok := required[key]
		return !ok
	}
}

// BuiltinTypes returns fresh copies of the directory's built-in types.
func BuiltinTypes() []TypeSpec {
	return []TypeSpec{
		{
			Name: "organization",
			Keys: []string{
				"name", "url_name", "description", "homepage_url", "logo_id", "org_type",
			},
			MergeWindow: DefaultMergeWindow,
			Required:    []string{"name", "url_name"},
			Counters: []Counter{
				{Name: "projects_count", Source: "project", Key: "organization_id"},
			},
		},
		{
			Name: "project",
			Keys: []string{
				"name", "url_name", "logo_id", "organization_id", "best_analysis_id",
				"description", "tag_list", "missing_source", "url", "download_url",
			},
			MergeWindow: DefaultMergeWindow,
			Required:    []string{"name"},
			RedoGuards:  map[string]string{"organization_id": "when_empty"},
			References: []Reference{
				{Key: "organization_id", Target: "organization"},
			},
		},
	}
}
