// Package errs defines the typed error taxonomy shared by every asset
// pipeline component.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error into one of the taxonomy's buckets.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	NotFound
	InvalidInput
	SourceUnavailable
	CompileFailed
	DbError
	LoadFailed
	DuplicateRegistration
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case SourceUnavailable:
		return "source_unavailable"
	case CompileFailed:
		return "compile_failed"
	case DbError:
		return "db_error"
	case LoadFailed:
		return "load_failed"
	case DuplicateRegistration:
		return "duplicate_registration"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and the operation that failed.
type Error struct {
	Kind   Kind
	Op     string
	Status string // compiler/loader status text, set only for CompileFailed/LoadFailed
	Err    error
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.NotFound) style comparisons against a bare Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// sentinel so errors.Is(err, errs.NotFound) works when target is a Kind value
// wrapped via New below; Kind itself also satisfies error via this shim.
func (k Kind) Error() string { return k.String() }

// New builds an *Error for op/kind wrapping cause.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// NewStatus builds a CompileFailed/LoadFailed style *Error carrying a status string.
func NewStatus(op string, kind Kind, status string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Status: status, Err: cause}
}

// Of reports the Kind of err, or Unknown if err is not (or does not wrap) an *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
