package acp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/markpollack/acp-go/wire"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ACP-specific error codes, all in the -32000..-32099 range.
const (
	CodeConcurrentPrompt       = -32000
	CodeSessionNotFound        = -32001
	CodeCapabilityNotSupported = -32002
	CodeAuthRequired           = -32003
)

// Sentinel errors for session operations.
var (
	// ErrSessionClosed indicates the session is closing or closed;
	// pending calls fail with it and new traffic is refused.
	ErrSessionClosed = errors.New("acp: session closed")

	// ErrNotStarted indicates a call on a session before Start.
	ErrNotStarted = errors.New("acp: session not started")

	// ErrTimeout indicates an outbound request exceeded its deadline.
	// The session stays open; only the one call fails.
	ErrTimeout = errors.New("acp: request timed out")
)

// Error is the in-process form of a protocol error: the numeric
// JSON-RPC code, a message, and optional structured data. Handlers
// return *Error to control the code that goes on the wire; callers
// branch on the code of errors coming back from Call.
type Error struct {
	Code    int
	Message string
	Data    json.RawMessage
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("acp: rpc error %d: %s", e.Code, e.Message)
}

// Errorf builds a protocol error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData returns a copy of the error carrying marshaled data.
// Marshal failures drop the data rather than the error.
func (e *Error) WithData(v any) *Error {
	data, err := json.Marshal(v)
	if err != nil {
		return e
	}
	return &Error{Code: e.Code, Message: e.Message, Data: data}
}

// Convenience predicates for branching on well-known codes.

func (e *Error) IsParseError() bool       { return e.Code == CodeParseError }
func (e *Error) IsInvalidRequest() bool   { return e.Code == CodeInvalidRequest }
func (e *Error) IsMethodNotFound() bool   { return e.Code == CodeMethodNotFound }
func (e *Error) IsInvalidParams() bool    { return e.Code == CodeInvalidParams }
func (e *Error) IsInternalError() bool    { return e.Code == CodeInternalError }
func (e *Error) IsConcurrentPrompt() bool { return e.Code == CodeConcurrentPrompt }
func (e *Error) IsSessionNotFound() bool  { return e.Code == CodeSessionNotFound }
func (e *Error) IsAuthRequired() bool     { return e.Code == CodeAuthRequired }

// IsCapabilityNotSupported reports the feature-detection code peers use
// to probe optional capabilities.
func (e *Error) IsCapabilityNotSupported() bool { return e.Code == CodeCapabilityNotSupported }

// toWire converts to the wire-shaped error object. Lossless: code,
// message, and data all cross unchanged.
func (e *Error) toWire() *wire.Error {
	return &wire.Error{Code: e.Code, Message: e.Message, Data: e.Data}
}

// errorFromWire converts a wire error object back to the in-process form.
func errorFromWire(we *wire.Error) *Error {
	return &Error{Code: we.Code, Message: we.Message, Data: we.Data}
}

// AsError extracts the typed protocol error from an error chain, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}
