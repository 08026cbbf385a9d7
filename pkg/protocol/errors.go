package protocol

import (
	"errors"
	"fmt"
)

// ProtocolError indicates a wire-level fault: bad version byte, negative or
// oversized length fields, truncated input, or trailing garbage. Protocol
// errors are always fatal to the connection that produced them.
type ProtocolError struct {
	Op      string // operation that failed: "encode", "decode", "read frame"
	Message string
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("protocol %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a ProtocolError for the given operation.
func NewProtocolError(op, format string, args ...any) *ProtocolError {
	return &ProtocolError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
