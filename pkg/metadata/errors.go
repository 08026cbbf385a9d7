// Package metadata persists file and directory records as per-user JSON
// documents. Each user owns two files under the metadata root, files.json
// and directories.json, loaded lazily on first access and rewritten
// atomically on every mutation.
package metadata

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of store error that occurred.
type ErrorCode int

const (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound ErrorCode = iota + 1

	// ErrAlreadyExists indicates a uniqueness constraint was violated.
	ErrAlreadyExists

	// ErrNotEmpty indicates the directory still contains files or
	// subdirectories.
	ErrNotEmpty

	// ErrAccessDenied indicates the record belongs to a different user.
	ErrAccessDenied

	// ErrInvalidArgument indicates a malformed record or parameter.
	ErrInvalidArgument

	// ErrIOError indicates the underlying JSON file could not be read or
	// written.
	ErrIOError
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotEmpty:
		return "NotEmpty"
	case ErrAccessDenied:
		return "AccessDenied"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrIOError:
		return "IOError"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// StoreError represents a metadata store error with an error code.
type StoreError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err, or 0 if err is not a StoreError.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsNotFound reports whether err is a NotFound store error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrNotFound
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(resourceType, id string) *StoreError {
	return &StoreError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s %s not found", resourceType, id),
	}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(message string) *StoreError {
	return &StoreError{
		Code:    ErrAlreadyExists,
		Message: message,
	}
}

// NewNotEmptyError creates a NotEmpty error.
func NewNotEmptyError(name string) *StoreError {
	return &StoreError{
		Code:    ErrNotEmpty,
		Message: fmt.Sprintf("directory %s is not empty", name),
	}
}

// NewAccessDeniedError creates an AccessDenied error.
func NewAccessDeniedError(message string) *StoreError {
	return &StoreError{
		Code:    ErrAccessDenied,
		Message: message,
	}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(message string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}

// NewIOError creates an IOError wrapping the underlying cause.
func NewIOError(message string, err error) *StoreError {
	return &StoreError{
		Code:    ErrIOError,
		Message: message,
		Err:     err,
	}
}
