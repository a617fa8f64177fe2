// Package wire implements the JSON-RPC 2.0 frame codec for the Agent
// Client Protocol.
//
// A frame is a single JSON object. The message kind is determined by
// field presence, not by an explicit tag: a frame with a "method" field
// is a Request (with "id") or a Notification (without); a frame with an
// "id" but no "method" is a Response. Params, results, and error data
// are held as raw JSON and decoded lazily via [Unmarshal].
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the only accepted value of the "jsonrpc" field.
const Version = "2.0"

// CodeParseError is the JSON-RPC code reported when a frame cannot be
// decoded. The full protocol error taxonomy lives in the root acp package;
// this one belongs to the codec because Decode itself produces it.
const CodeParseError = -32700

// Kind identifies the JSON-RPC message variant of a decoded frame.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

// String returns the lower-case variant name, for logs.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// ID is a JSON-RPC request id. The SDK issues string ids rendered from a
// decimal counter; on ingress both string and integer ids are accepted and
// matched by value ("7" and 7 normalize to the same key, so a peer that
// echoes our string id as a number still correlates).
type ID struct {
	raw json.RawMessage
}

// StringID returns an ID carrying the string value s.
func StringID(s string) ID {
	raw, _ := json.Marshal(s)
	return ID{raw: raw}
}

// Int64ID returns an ID carrying the integer value n.
func Int64ID(n int64) ID {
	return ID{raw: []byte(strconv.FormatInt(n, 10))}
}

// Valid reports whether the id is present (a frame without an "id" field
// yields the zero ID).
func (id ID) Valid() bool { return len(id.raw) > 0 }

// IsZero reports the inverse of Valid; encoding/json's omitzero consults
// it so notifications carry no "id" member at all. The omitzero option is
// honored by encoding/json from Go 1.24; older toolchains ignore it and
// encode a missing id as "id":null.
func (id ID) IsZero() bool { return !id.Valid() }

// Key normalizes the id to a correlation key. String ids map to their
// value, integer ids to their decimal rendering. Fractional, oversized,
// or non-scalar ids are rejected.
func (id ID) Key() (string, error) {
	if !id.Valid() {
		return "", fmt.Errorf("wire: empty id")
	}
	dec := json.NewDecoder(bytes.NewReader(id.raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("wire: decode id: %w", err)
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return "", fmt.Errorf("wire: non-integer id %s", v)
		}
		return strconv.FormatInt(n, 10), nil
	default:
		return "", fmt.Errorf("wire: id must be a string or integer, got %s", id.raw)
	}
}

// String renders the id for logs; invalid ids render as "<none>".
func (id ID) String() string {
	if key, err := id.Key(); err == nil {
		return key
	}
	return "<none>"
}

// MarshalJSON emits the id exactly as received (or constructed).
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.Valid() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON captures the raw id bytes for verbatim echo in responses.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		id.raw = nil
		return nil
	}
	id.raw = append(id.raw[:0], data...)
	return nil
}

// Error is the wire-shaped JSON-RPC error object carried in responses.
// The in-process form, with code predicates, is the root package's Error;
// the session converts between the two without loss.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface so decode failures can flow
// through ordinary error returns.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is a decoded JSON-RPC frame covering all three variants.
// Exactly the fields relevant to the variant are set; see Kind.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id,omitzero"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind discriminates the message variant by field presence.
func (m *Message) Kind() Kind {
	switch {
	case m.Method != "" && m.ID.Valid():
		return KindRequest
	case m.Method != "":
		return KindNotification
	case m.ID.Valid():
		return KindResponse
	default:
		return KindInvalid
	}
}

// NewRequest builds a request frame. Params may be nil.
func NewRequest(id ID, method string, params json.RawMessage) Message {
	return Message{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// NewNotification builds a notification frame. Params may be nil.
func NewNotification(method string, params json.RawMessage) Message {
	return Message{JSONRPC: Version, Method: method, Params: params}
}

// NewResponse builds a success response echoing the request id. A nil
// result is sent as JSON null so the "result" member is always present.
func NewResponse(id ID, result json.RawMessage) Message {
	if result == nil {
		result = json.RawMessage("null")
	}
	return Message{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse builds an error response echoing the request id.
func NewErrorResponse(id ID, werr *Error) Message {
	return Message{JSONRPC: Version, ID: id, Error: werr}
}

// Encode serializes a frame to a single line of JSON. encoding/json
// escapes embedded newlines inside string values, so the output never
// contains a literal LF or CR and is safe for newline framing.
func Encode(m Message) ([]byte, error) {
	m.JSONRPC = Version
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", m.Kind(), err)
	}
	return data, nil
}

// Decode parses a frame and verifies it is a recognizable JSON-RPC 2.0
// message. Malformed JSON, an unrecognized "jsonrpc" value, or an object
// with neither "method" nor "id" all fail with a *Error carrying
// CodeParseError.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, &Error{Code: CodeParseError, Message: "invalid JSON frame: " + err.Error()}
	}
	if m.JSONRPC != Version {
		return Message{}, &Error{Code: CodeParseError, Message: fmt.Sprintf("unsupported jsonrpc version %q", m.JSONRPC)}
	}
	if m.Kind() == KindInvalid {
		return Message{}, &Error{Code: CodeParseError, Message: "frame has neither method nor id"}
	}
	return m, nil
}

// Marshal encodes a params/result value to raw JSON. A nil value yields
// nil raw JSON so the field is omitted from the frame.
func Marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes raw params/result JSON into v. Absent raw JSON (nil
// or JSON null) leaves v untouched.
func Unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("wire: unmarshal: %w", err)
	}
	return nil
}
