package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/editledger/internal/entity"
)

// Validation error codes (E100-E199)
const (
	// TypeSpec errors (E101-E109)
	ErrTypeNameInvalid    = "E101" // name is required and must be an identifier
	ErrTypeNoKeys         = "E102" // at least one key required
	ErrInvalidKey         = "E103" // key is empty or not an identifier
	ErrDuplicateName      = "E104" // duplicate type or key name
	ErrUntrackedKey       = "E105" // required/guard/reference key is not tracked
	ErrUnknownGuard       = "E106" // redo guard name is not registered
	ErrInvalidMergeWindow = "E107" // merge window is negative

	// Cross-type errors (E110-E119)
	ErrUnknownTargetType  = "E110" // reference targets an unknown type
	ErrUnknownSourceType  = "E111" // counter sources an unknown type
	ErrCounterNoReference = "E112" // counter source key does not reference the owner
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// identPattern matches type names and attribute keys.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks a set of entity types against schema rules.
// Returns all errors found (does not fail-fast). A nil result means
// entity.NewRegistry will accept the same specs.
func Validate(specs []entity.TypeSpec) []ValidationError {
	var errs []ValidationError

	names := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if names[spec.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entity[%d].name", i),
				Message: fmt.Sprintf("duplicate entity type: %q", spec.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[spec.Name] = true
		errs = append(errs, validateTypeSpec(spec)...)
	}

	byName := make(map[string]entity.TypeSpec, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
	}

	for _, spec := range specs {
		for _, ref := range spec.References {
			if !names[ref.Target] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.references.%s", spec.Name, ref.Key),
					Message: fmt.Sprintf("unknown entity type %q", ref.Target),
					Code:    ErrUnknownTargetType,
				})
			}
		}
		for _, c := range spec.Counters {
			field := fmt.Sprintf("%s.counters.%s", spec.Name, c.Name)
			source, ok := byName[c.Source]
			if !ok {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("unknown source type %q", c.Source),
					Code:    ErrUnknownSourceType,
				})
				continue
			}
			if !slices.Contains(source.References, entity.Reference{Key: c.Key, Target: spec.Name}) {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%s.%s does not reference %s", c.Source, c.Key, spec.Name),
					Code:    ErrCounterNoReference,
				})
			}
		}
	}

	return errs
}

func validateTypeSpec(spec entity.TypeSpec) []ValidationError {
	var errs []ValidationError

	if !identPattern.MatchString(spec.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid entity type name %q", spec.Name),
			Code:    ErrTypeNameInvalid,
		})
	}
	prefix := spec.Name

	if len(spec.Keys) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".keys",
			Message: "at least one key is required",
			Code:    ErrTypeNoKeys,
		})
	}

	if spec.MergeWindow < 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".merge_window",
			Message: fmt.Sprintf("merge window must not be negative, got %s", spec.MergeWindow),
			Code:    ErrInvalidMergeWindow,
		})
	}

	tracked := make(map[string]bool, len(spec.Keys))
	for i, key := range spec.Keys {
		field := fmt.Sprintf("%s.keys[%d]", prefix, i)
		if !identPattern.MatchString(key) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid key %q", key),
				Code:    ErrInvalidKey,
			})
		}
		if tracked[key] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate key: %q", key),
				Code:    ErrDuplicateName,
			})
		}
		tracked[key] = true
	}

	untracked := func(field, key string) {
		if !tracked[key] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("key %q is not tracked", key),
				Code:    ErrUntrackedKey,
			})
		}
	}

	for _, key := range spec.Required {
		untracked(prefix+".required", key)
	}

	guardKeys := make([]string, 0, len(spec.RedoGuards))
	for key := range spec.RedoGuards {
		guardKeys = append(guardKeys, key)
	}
	slices.Sort(guardKeys)
	for _, key := range guardKeys {
		field := prefix + ".redo_guard." + key
		untracked(field, key)
		name := spec.RedoGuards[key]
		if _, ok := entity.RedoGuards[name]; !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown redo guard %q, must be one of %s", name, guardNames()),
				Code:    ErrUnknownGuard,
			})
		}
	}

	for _, ref := range spec.References {
		untracked(prefix+".references."+ref.Key, ref.Key)
	}

	return errs
}

func guardNames() string {
	names := make([]string, 0, len(entity.RedoGuards))
	for name := range entity.RedoGuards {
		names = append(names, fmt.Sprintf("%q", name))
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}
