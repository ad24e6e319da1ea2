package scraping

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Typed errors below match them via errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNavigation = errors.New("navigation error")
	ErrStorage    = errors.New("storage error")
)

// ValidationError reports a job that can never succeed as submitted.
type ValidationError struct {
	Msg string
}

// NewValidationError builds a ValidationError.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

func (e *ValidationError) Error() string { return e.Msg }

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NavigationError is returned once every navigation attempt has failed.
type NavigationError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes the last attempt's error.
func (e *NavigationError) Unwrap() error { return e.Err }

// Is matches ErrNavigation.
func (e *NavigationError) Is(target error) bool { return target == ErrNavigation }

// StorageError wraps an upload failure for a specific object path.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

// Unwrap exposes the backend error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }
