package errors

import (
	"fmt"
)

// ErrSyncTimeout is returned when waiting for an in-flight sync takes longer
// than allowed.
var ErrSyncTimeout = New("timed out waiting for in-flight sync")

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// UnknownBackendError is returned when a folder is configured with a backend
// that isn't registered.
type UnknownBackendError struct {
	Name string
}

func (err UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend %q", err.Name)
}
