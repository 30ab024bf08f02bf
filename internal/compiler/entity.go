package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/editledger/internal/entity"
)

// CompileEntityType parses a CUE value into an entity.TypeSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: project: { keys: ["name"] }`)
//	spec, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity.project")))
//
// Recognized fields:
//
//	keys:         [...string]            tracked keys, required
//	merge_window: string                 Go duration, default 30m
//	required:     [...string]            keys that may not be undone to empty
//	redo_guard:   {[key]: string}        guard name from entity.RedoGuards
//	references:   {[key]: string}        key -> referenced entity type
//	counters:     {[name]: {source, key}}
func CompileEntityType(v cue.Value) (*entity.TypeSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &entity.TypeSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	keysVal := v.LookupPath(cue.ParsePath("keys"))
	if !keysVal.Exists() {
		return nil, &CompileError{Field: "keys", Message: "keys is required", Pos: v.Pos()}
	}
	keys, err := stringList(keysVal, "keys")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, &CompileError{Field: "keys", Message: "at least one key is required", Pos: keysVal.Pos()}
	}
	spec.Keys = keys

	if windowVal := v.LookupPath(cue.ParsePath("merge_window")); windowVal.Exists() {
		s, err := windowVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		window, err := time.ParseDuration(s)
		if err != nil || window <= 0 {
			return nil, &CompileError{
				Field:   "merge_window",
				Message: fmt.Sprintf("invalid duration %q", s),
				Pos:     windowVal.Pos(),
			}
		}
		spec.MergeWindow = window
	}

	if requiredVal := v.LookupPath(cue.ParsePath("required")); requiredVal.Exists() {
		if spec.Required, err = stringList(requiredVal, "required"); err != nil {
			return nil, err
		}
	}

	if guardsVal := v.LookupPath(cue.ParsePath("redo_guard")); guardsVal.Exists() {
		pairs, err := stringFields(guardsVal, "redo_guard")
		if err != nil {
			return nil, err
		}
		spec.RedoGuards = make(map[string]string, len(pairs))
		for _, p := range pairs {
			if _, ok := entity.RedoGuards[p.value]; !ok {
				return nil, &CompileError{
					Field:   "redo_guard",
					Message: fmt.Sprintf("unknown guard %q on key %q", p.value, p.label),
					Pos:     p.pos,
				}
			}
			spec.RedoGuards[p.label] = p.value
		}
	}

	if refsVal := v.LookupPath(cue.ParsePath("references")); refsVal.Exists() {
		pairs, err := stringFields(refsVal, "references")
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			spec.References = append(spec.References, entity.Reference{Key: p.label, Target: p.value})
		}
	}

	if countersVal := v.LookupPath(cue.ParsePath("counters")); countersVal.Exists() {
		if spec.Counters, err = parseCounters(countersVal); err != nil {
			return nil, err
		}
	}

	return spec, nil
}

func parseCounters(v cue.Value) ([]entity.Counter, error) {
	var counters []entity.Counter

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		c := entity.Counter{Name: iter.Label()}
		for field, dst := range map[string]*string{"source": &c.Source, "key": &c.Key} {
			fv := iter.Value().LookupPath(cue.ParsePath(field))
			if !fv.Exists() {
				return nil, &CompileError{
					Field:   "counters",
					Message: fmt.Sprintf("counter %q: %s is required", c.Name, field),
					Pos:     iter.Value().Pos(),
				}
			}
			s, err := fv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			*dst = s
		}
		counters = append(counters, c)
	}
	return counters, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: v.Pos()}
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

type labeledString struct {
	label string
	value string
	pos   token.Pos
}

// stringFields reads a struct of string values in declaration order.
func stringFields(v cue.Value, field string) ([]labeledString, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a struct of strings", Pos: v.Pos()}
	}
	var out []labeledString
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("%s must be a string", iter.Label()),
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, labeledString{label: iter.Label(), value: s, pos: iter.Value().Pos()})
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
