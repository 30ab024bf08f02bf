package ledger

import (
	"errors"
	"fmt"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
)

// ErrorCode categorizes ledger errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed input: unknown type or key,
	// missing actor, a restricted cascade with dependents.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNotFound indicates the edit or entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeNotUndoable indicates the edit is not in an undoable state.
	ErrCodeNotUndoable ErrorCode = "NOT_UNDOABLE"

	// ErrCodeNotRedoable indicates the edit is not in a redoable state.
	ErrCodeNotRedoable ErrorCode = "NOT_REDOABLE"

	// ErrCodePolicyViolation indicates an entity type rule refused the operation.
	ErrCodePolicyViolation ErrorCode = "POLICY_VIOLATION"

	// ErrCodeConcurrentModification indicates lock contention or a record
	// that changed underneath the operation. Safe to retry.
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	// ErrCodeStorage indicates the store failed. Nothing was written.
	ErrCodeStorage ErrorCode = "STORAGE"
)

// Error is returned by every Ledger operation that fails.
type Error struct {
	Code    ErrorCode
	Message string

	// EditID identifies the edit being undone or redone, if any.
	EditID string

	// Target and Key identify the affected attribute, if any.
	Target ir.EntityRef
	Key    string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.EditID != "":
		msg += fmt.Sprintf(" (edit=%s)", e.EditID)
	case !e.Target.IsZero() && e.Key != "":
		msg += fmt.Sprintf(" (target=%s, key=%s)", e.Target, e.Key)
	case !e.Target.IsZero():
		msg += fmt.Sprintf(" (target=%s)", e.Target)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of a ledger error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }

// IsNotFound returns true if err reports a missing edit or entity.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsNotUndoable returns true if err reports an edit that cannot be undone.
func IsNotUndoable(err error) bool { return CodeOf(err) == ErrCodeNotUndoable }

// IsNotRedoable returns true if err reports an edit that cannot be redone.
func IsNotRedoable(err error) bool { return CodeOf(err) == ErrCodeNotRedoable }

// IsPolicyViolation returns true if err reports a refused policy check.
func IsPolicyViolation(err error) bool { return CodeOf(err) == ErrCodePolicyViolation }

// IsConcurrentModification returns true if err reports contention.
func IsConcurrentModification(err error) bool {
	return CodeOf(err) == ErrCodeConcurrentModification
}

// IsStorage returns true if err reports a storage failure.
func IsStorage(err error) bool { return CodeOf(err) == ErrCodeStorage }

func validationError(target ir.EntityRef, key, format string, args ...any) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...), Target: target, Key: key}
}

func notFoundError(target ir.EntityRef, editID, format string, args ...any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...), Target: target, EditID: editID}
}

func notUndoableError(e ir.Edit, format string, args ...any) *Error {
	return editError(ErrCodeNotUndoable, e, format, args...)
}

func notRedoableError(e ir.Edit, format string, args ...any) *Error {
	return editError(ErrCodeNotRedoable, e, format, args...)
}

func policyError(e ir.Edit, format string, args ...any) *Error {
	return editError(ErrCodePolicyViolation, e, format, args...)
}

func editError(code ErrorCode, e ir.Edit, format string, args ...any) *Error {
	h := e.Head()
	le := &Error{Code: code, Message: fmt.Sprintf(format, args...), EditID: h.ID, Target: h.Target}
	if pe, ok := e.(*ir.PropertyEdit); ok {
		le.Key = pe.Key
	}
	return le
}

func isStoreNotFound(err error) bool {
	return err != nil && errors.Is(err, store.ErrNotFound)
}
