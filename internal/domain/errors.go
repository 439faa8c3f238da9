package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Package level errors wrap one of these so callers can
// classify failures with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrImmutableRecord   = errors.New("record is immutable")
	ErrConflict          = errors.New("conflict")
	ErrTransport         = errors.New("transport unavailable")
)

// ValidationError describes malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From   IncidentStatus
	To     IncidentStatus
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s: %s", e.From, e.To, e.Reason)
}

// Is makes every TransitionError match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// NewKindError returns an error with its own message that still matches
// kind under errors.Is. Packages use it to declare their sentinels.
func NewKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
