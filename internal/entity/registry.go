package entity

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/editledger/internal/ir"
)

// ErrUnknownType is returned when a type name is not registered.
var ErrUnknownType = errors.New("unknown entity type")

// Type is a validated, frozen TypeSpec.
type Type struct {
	spec      TypeSpec
	keys      mapset.Set[string]
	undoToNil func(key string) bool
	guards    map[string]RedoGuard
}

// Name returns the type name.
func (t *Type) Name() string { return t.spec.Name }

// Keys returns the tracked keys in declaration order.
func (t *Type) Keys() []string { return slices.Clone(t.spec.Keys) }

// Tracks reports whether key is a tracked attribute of this type.
func (t *Type) Tracks(key string) bool { return t.keys.Contains(key) }

// MergeWindow is the maximum age of a record that may still be amended.
func (t *Type) MergeWindow() time.Duration { return t.spec.MergeWindow }

// AllowUndoToNil reports whether undoing may leave key empty.
func (t *Type) AllowUndoToNil(key string) bool { return t.undoToNil(key) }

// AllowRedo reports whether key may be re-applied while it holds current.
// Keys without a guard always allow redo.
func (t *Type) AllowRedo(key string, current ir.Value) bool {
	guard, ok := t.guards[key]
	if !ok {
		return true
	}
	return guard(current)
}

// References returns the keys of this type that point at other entities.
func (t *Type) References() []Reference { return slices.Clone(t.spec.References) }

// Counters returns the counters stored on this type.
func (t *Type) Counters() []Counter { return slices.Clone(t.spec.Counters) }

// Spec returns a copy of the spec this type was built from.
func (t *Type) Spec() TypeSpec {
	spec := t.spec
	spec.Keys = slices.Clone(t.spec.Keys)
	spec.Required = slices.Clone(t.spec.Required)
	spec.References = slices.Clone(t.spec.References)
	spec.Counters = slices.Clone(t.spec.Counters)
	spec.RedoGuards = make(map[string]string, len(t.spec.RedoGuards))
	for k, v := range t.spec.RedoGuards {
		spec.RedoGuards[k] = v
	}
	return spec
}

// Registry holds every tracked type. It is immutable after NewRegistry
// returns and safe for concurrent use.
type Registry struct {
	types      map[string]*Type
	names      []string
	dependents map[string][]Dependent     // target type -> referencing (type, key)
	counters   map[Dependent][]CounterRef // (source type, key) -> counters to recompute
}

// NewRegistry validates specs and builds a registry.
//
// Validation rules:
//   - type names are unique and non-empty
//   - keys are unique and non-empty
//   - required keys and guarded keys are tracked
//   - guard names exist in RedoGuards
//   - references use a tracked key and name a registered type
//   - counters name a registered source type and one of its reference keys
//     pointing back at the owner
func NewRegistry(specs ...TypeSpec) (*Registry, error) {
	r := &Registry{
		types:      make(map[string]*Type, len(specs)),
		dependents: make(map[string][]Dependent),
		counters:   make(map[Dependent][]CounterRef),
	}

	for _, spec := range specs {
		t, err := buildType(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := r.types[spec.Name]; dup {
			return nil, fmt.Errorf("entity type %q declared twice", spec.Name)
		}
		r.types[spec.Name] = t
		r.names = append(r.names, spec.Name)
	}
	sort.Strings(r.names)

	for _, name := range r.names {
		t := r.types[name]
		for _, ref := range t.spec.References {
			if _, ok := r.types[ref.Target]; !ok {
				return nil, fmt.Errorf("entity type %q: reference %q targets %w %q", name, ref.Key, ErrUnknownType, ref.Target)
			}
			r.dependents[ref.Target] = append(r.dependents[ref.Target], Dependent{SourceType: name, Key: ref.Key})
		}
	}

	for _, name := range r.names {
		t := r.types[name]
		for _, c := range t.spec.Counters {
			source, ok := r.types[c.Source]
			if !ok {
				return nil, fmt.Errorf("entity type %q: counter %q sources %w %q", name, c.Name, ErrUnknownType, c.Source)
			}
			if !slices.Contains(source.spec.References, Reference{Key: c.Key, Target: name}) {
				return nil, fmt.Errorf("entity type %q: counter %q: %s.%s does not reference %s", name, c.Name, c.Source, c.Key, name)
			}
			dep := Dependent{SourceType: c.Source, Key: c.Key}
			r.counters[dep] = append(r.counters[dep], CounterRef{OwnerType: name, Counter: c})
		}
	}

	return r, nil
}

func buildType(spec TypeSpec) (*Type, error) {
	if spec.Name == "" {
		return nil, errors.New("entity type has no name")
	}
	if len(spec.Keys) == 0 {
		return nil, fmt.Errorf("entity type %q tracks no keys", spec.Name)
	}
	if spec.MergeWindow < 0 {
		return nil, fmt.Errorf("entity type %q: negative merge window %s", spec.Name, spec.MergeWindow)
	}
	if spec.MergeWindow == 0 {
		spec.MergeWindow = DefaultMergeWindow
	}

	keys := mapset.NewThreadUnsafeSet[string]()
	for _, k := range spec.Keys {
		if k == "" {
			return nil, fmt.Errorf("entity type %q has an empty key", spec.Name)
		}
		if !keys.Add(k) {
			return nil, fmt.Errorf("entity type %q tracks %q twice", spec.Name, k)
		}
	}

	for _, k := range spec.Required {
		if !keys.Contains(k) {
			return nil, fmt.Errorf("entity type %q: required key %q is not tracked", spec.Name, k)
		}
	}

	guards := make(map[string]RedoGuard, len(spec.RedoGuards))
	for k, name := range spec.RedoGuards {
		if !keys.Contains(k) {
			return nil, fmt.Errorf("entity type %q: redo guard on untracked key %q", spec.Name, k)
		}
		guard, ok := RedoGuards[name]
		if !ok {
			return nil, fmt.Errorf("entity type %q: unknown redo guard %q on key %q", spec.Name, name, k)
		}
		guards[k] = guard
	}

	for _, ref := range spec.References {
		if !keys.Contains(ref.Key) {
			return nil, fmt.Errorf("entity type %q: reference key %q is not tracked", spec.Name, ref.Key)
		}
	}

	return &Type{
		spec:      spec,
		keys:      keys,
		undoToNil: RequiredKeys(spec.Required...),
		guards:    guards,
	}, nil
}

// Lookup returns the named type.
func (r *Registry) Lookup(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, name)
	}
	return t, nil
}

// Names returns registered type names in sorted order.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Dependents returns the (source type, key) pairs that reference targetType,
// ordered by source type.
func (r *Registry) Dependents(targetType string) []Dependent {
	return slices.Clone(r.dependents[targetType])
}

// CountersFor returns the counters that must be recomputed when key changes
// on an entity of sourceType, or when such an entity is destroyed or restored.
func (r *Registry) CountersFor(sourceType, key string) []CounterRef {
	return slices.Clone(r.counters[Dependent{SourceType: sourceType, Key: key}])
}

// CountersFrom returns every counter fed by sourceType, across all keys.
func (r *Registry) CountersFrom(sourceType string) []CounterRef {
	var refs []CounterRef
	t, ok := r.types[sourceType]
	if !ok {
		return nil
	}
	for _, ref := range t.spec.References {
		refs = append(refs, r.counters[Dependent{SourceType: sourceType, Key: ref.Key}]...)
	}
	return refs
}

// OverrideMergeWindows replaces the merge window of named specs in place.
// Unknown type names are an error.
func OverrideMergeWindows(specs []TypeSpec, windows map[string]time.Duration) error {
	for name, window := range windows {
		found := false
		for i := range specs {
			if specs[i].Name == name {
				specs[i].MergeWindow = window
				found = true
			}
		}
		if !found {
			return fmt.Errorf("merge window for %w %q", ErrUnknownType, name)
		}
	}
	return nil
}
