// Package errors provides the error taxonomy shared by the mutation pipeline.
// Every fallible operation returns an error whose Kind is one of Validation,
// NotFound, NotImplemented, Conflict or Internal.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a DomainError.
type Kind int

const (
	// KindUnknown is the zero value for errors that carry no kind.
	KindUnknown Kind = iota
	// KindValidation marks malformed input: bad ids, missing window, unsupported versions.
	KindValidation
	// KindNotFound marks a missing field, record or handler target.
	KindNotFound
	// KindNotImplemented marks an unregistered handler or strategy.
	KindNotImplemented
	// KindConflict marks an optimistic version mismatch.
	KindConflict
	// KindInternal marks an unexpected state, including recovered panics.
	KindInternal
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindNotImplemented:
		return "not_implemented"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Standard sentinel errors for common conditions.
var (
	ErrInvalidID          = errors.New("invalid identifier")
	ErrMissingWindow      = errors.New("windowId is required for undo/redo")
	ErrNoColumns          = errors.New("No columns to update in batch")
	ErrNoRecords          = errors.New("No records to update in batch")
	ErrFieldNotFound      = errors.New("field not found")
	ErrRecordNotFound     = errors.New("record not found")
	ErrHandlerNotFound    = errors.New("no handler registered")
	ErrUnsupportedVersion = errors.New("unsupported undo/redo command version")
	ErrVersionConflict    = errors.New("record version conflict")
	ErrHistoryCorrupted   = errors.New("undo history corrupted")
)

// DomainError is the error type crossing every package boundary.
type DomainError struct {
	Kind    Kind
	Message string // What happened
	Field   string // The input that caused the error (optional)
	Cause   error  // The underlying error (optional)
}

func (e *DomainError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Validation creates a validation error.
func Validation(message string) *DomainError {
	return &DomainError{Kind: KindValidation, Message: message}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a validation error bound to an input field.
func ValidationField(field, message string, cause error) *DomainError {
	return &DomainError{Kind: KindValidation, Field: field, Message: message, Cause: cause}
}

// NotFound creates a not-found error.
func NotFound(message string, cause error) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: message, Cause: cause}
}

// NotImplemented creates a not-implemented error.
func NotImplemented(message string, cause error) *DomainError {
	return &DomainError{Kind: KindNotImplemented, Message: message, Cause: cause}
}

// Conflict creates a conflict error.
func Conflict(message string, cause error) *DomainError {
	return &DomainError{Kind: KindConflict, Message: message, Cause: cause}
}

// Internal creates an internal error.
func Internal(message string, cause error) *DomainError {
	return &DomainError{Kind: KindInternal, Message: message, Cause: cause}
}

// KindOf returns the kind of the first DomainError in the chain.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// AsDomainError extracts a DomainError from an error chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	ok := errors.As(err, &de)
	return de, ok
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsNotImplemented checks if an error is a not-implemented error.
func IsNotImplemented(err error) bool { return KindOf(err) == KindNotImplemented }

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// Is is re-exported from the standard errors package for convenience.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is re-exported from the standard errors package for convenience.
func As(err error, target any) bool { return errors.As(err, target) }

// New is re-exported from the standard errors package for convenience.
func New(text string) error { return errors.New(text) }

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted additional context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
