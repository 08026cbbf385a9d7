// Package storage abstracts the physical byte store backing uploaded
// files. Content lives as plain files on the local filesystem; chunks are
// written and read at explicit offsets so transfers never buffer a whole
// file in memory.
package storage

import (
	"errors"
	"fmt"
)

// StorageError wraps a failed storage operation, preserving the underlying
// cause for errors.Is/As checks.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
