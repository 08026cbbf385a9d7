package client

import (
	"errors"
	"fmt"

	"github.com/cubbyfs/cubby/pkg/protocol"
)

// ErrNotConnected is returned when a request is issued before Connect.
var ErrNotConnected = errors.New("client is not connected")

// ServerError is a failure reported by the server in a response packet.
type ServerError struct {
	Command protocol.Command
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected %s", e.Command)
	}
	return fmt.Sprintf("server rejected %s: %s", e.Command, e.Message)
}

// IsServerError reports whether err is a server-side rejection and returns it.
func IsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// responseError builds a ServerError from a failure response packet.
func responseError(resp *protocol.Packet) error {
	msg := resp.Meta(protocol.MetaMessage)
	if msg == "" {
		var status protocol.StatusPayload
		if err := protocol.UnmarshalPayload(resp.Payload, &status); err == nil {
			msg = status.Message
		}
	}
	return &ServerError{Command: resp.Command, Message: msg}
}
