package errors

import (
	"context"
	"errors"
	"syscall"
)

// Category represents the type of error for display and handling purposes.
type Category int

const (
	// CategoryUnknown is the default for unclassified errors.
	CategoryUnknown Category = iota
	// CategoryUser indicates an error the caller can fix (bad input, missing window).
	CategoryUser
	// CategorySystem indicates a system-level error (disk full, database down).
	CategorySystem
	// CategoryRecoverable indicates an error that can be retried.
	CategoryRecoverable
	// CategoryInternal indicates an internal bug or unexpected state.
	CategoryInternal
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryUser:
		return "user"
	case CategorySystem:
		return "system"
	case CategoryRecoverable:
		return "recoverable"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Classify determines the category of an error.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	switch KindOf(err) {
	case KindValidation, KindNotFound:
		return CategoryUser
	case KindConflict:
		return CategoryRecoverable
	case KindNotImplemented, KindInternal:
		return CategoryInternal
	}

	if isSystemLevel(err) {
		return CategorySystem
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryRecoverable
	}
	return CategoryUnknown
}

// isSystemLevel checks if an error is a system-level error.
func isSystemLevel(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOSPC, syscall.EACCES, syscall.EPERM, syscall.EIO, syscall.EROFS:
			return true
		}
	}
	return errors.Is(err, ErrHistoryCorrupted)
}

// ExitCode maps an error to a process exit code for the CLI.
func ExitCode(err error) int {
	switch Classify(err) {
	case CategoryUnknown:
		if err == nil {
			return 0
		}
		return 1
	case CategoryUser:
		return 2
	case CategorySystem:
		return 3
	case CategoryRecoverable:
		return 4
	default:
		return 1
	}
}
