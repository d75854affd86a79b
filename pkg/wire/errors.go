package wire

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is matched by every ProtocolError.
var ErrMalformedFrame = errors.New("malformed frame")

// ProtocolError reports a server line the client cannot interpret.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed frame %q: %s", e.Line, e.Reason)
}

// Unwrap allows errors.Is(err, ErrMalformedFrame).
func (e *ProtocolError) Unwrap() error {
	return ErrMalformedFrame
}

func malformed(line, format string, args ...any) *ProtocolError {
	return &ProtocolError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// ServerError carries a numeric code and message sent by the server in
// REQERR, CONERR, END or ERROR frames.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error %d", e.Code)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}
