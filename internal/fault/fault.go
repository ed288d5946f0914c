// Package fault holds the error taxonomy shared by the portal core and the
// store API. Every remote-facing operation reports one of these kinds instead
// of panicking.
package fault

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindSlotConflict      Kind = "slot_conflict"
	KindIllegalTransition Kind = "illegal_transition"
	KindAuthRequired      Kind = "auth_required"
	KindNotFound          Kind = "not_found"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrSlotConflict      = errors.New("slot already taken")
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
	ErrAuthRequired      = errors.New("authentication required")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("store unavailable")
)

// ValidationError is a locally detected input problem keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unavailable wraps a transport or remote failure.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// KindOf classifies err. Unknown errors are reported as internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSlotConflict):
		return KindSlotConflict
	case errors.Is(err, ErrIllegalTransition):
		return KindIllegalTransition
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// NoFurtherAction reports whether err means the requested transition was
// already applied (or is moot), so the caller should refresh rather than fail.
func NoFurtherAction(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}
