package wire

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindDiscrimination(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Kind
	}{
		{"request", `{"jsonrpc":"2.0","id":"1","method":"initialize","params":{}}`, KindRequest},
		{"request with numeric id", `{"jsonrpc":"2.0","id":42,"method":"session/prompt"}`, KindRequest},
		{"notification", `{"jsonrpc":"2.0","method":"session/update","params":{}}`, KindNotification},
		{"success response", `{"jsonrpc":"2.0","id":"1","result":{"protocolVersion":1}}`, KindResponse},
		{"error response", `{"jsonrpc":"2.0","id":"1","error":{"code":-32601,"message":"nope"}}`, KindResponse},
		{"null result response", `{"jsonrpc":"2.0","id":"7","result":null}`, KindResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Kind())
		})
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{"jsonrpc":`},
		{"missing method and id", `{"jsonrpc":"2.0","params":{}}`},
		{"wrong version", `{"jsonrpc":"1.0","id":"1","method":"initialize"}`},
		{"missing version", `{"id":"1","method":"initialize"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.json))
			require.Error(t, err)

			var werr *Error
			require.True(t, errors.As(err, &werr))
			assert.Equal(t, CodeParseError, werr.Code)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"request", NewRequest(StringID("12"), "session/prompt", json.RawMessage(`{"sessionId":"s1"}`))},
		{"notification", NewNotification("session/cancel", json.RawMessage(`{"sessionId":"s1"}`))},
		{"response", NewResponse(StringID("12"), json.RawMessage(`{"stopReason":"end_turn"}`))},
		{"error response", NewErrorResponse(StringID("3"), &Error{Code: -32602, Message: "bad params", Data: json.RawMessage(`{"field":"prompt"}`)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "\n")

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Kind(), got.Kind())
			assert.Equal(t, tt.msg.Method, got.Method)
			assert.Equal(t, Version, got.JSONRPC)
			if tt.msg.ID.Valid() {
				wantKey, err := tt.msg.ID.Key()
				require.NoError(t, err)
				gotKey, err := got.ID.Key()
				require.NoError(t, err)
				assert.Equal(t, wantKey, gotKey)
			}
			if tt.msg.Error != nil {
				require.NotNil(t, got.Error)
				assert.Equal(t, tt.msg.Error.Code, got.Error.Code)
				assert.Equal(t, tt.msg.Error.Message, got.Error.Message)
				assert.JSONEq(t, string(tt.msg.Error.Data), string(got.Error.Data))
			}
		})
	}
}

// Normalized frames re-encode to the same JSON modulo field order.
func TestDecodeEncodeStability(t *testing.T) {
	in := `{"jsonrpc":"2.0","id":"1","method":"initialize","params":{"protocolVersion":1}}`
	msg, err := Decode([]byte(in))
	require.NoError(t, err)
	out, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestEncodeEscapesEmbeddedNewlines(t *testing.T) {
	params, err := Marshal(map[string]string{"text": "line one\nline two\r\n"})
	require.NoError(t, err)

	data, err := Encode(NewNotification("session/update", params))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n")
	assert.NotContains(t, string(data), "\r")

	msg, err := Decode(data)
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, Unmarshal(msg.Params, &got))
	assert.Equal(t, "line one\nline two\r\n", got["text"])
}

func TestIDKeyMatchesStringAndIntegerByValue(t *testing.T) {
	var fromString, fromNumber Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"7","result":null}`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":7,"result":null}`), &fromNumber))

	sk, err := fromString.ID.Key()
	require.NoError(t, err)
	nk, err := fromNumber.ID.Key()
	require.NoError(t, err)
	assert.Equal(t, sk, nk)
}

func TestIDKeyRejectsNonScalarIDs(t *testing.T) {
	for _, raw := range []string{`1.5`, `{"a":1}`, `[1]`, `true`} {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(raw), &id))
		_, err := id.Key()
		assert.Error(t, err, "id %s", raw)
	}
}

func TestIDEchoesRawBytes(t *testing.T) {
	// A numeric inbound id must be echoed back as a number, not restrung.
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":42,"method":"initialize"}`), &msg))

	data, err := Encode(NewResponse(msg.ID, json.RawMessage(`{}`)))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":42`)
}

func TestNotificationOmitsID(t *testing.T) {
	data, err := Encode(NewNotification("session/cancel", nil))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), `"id"`), "notification must not carry an id: %s", data)
}

func TestNewResponseAlwaysCarriesResult(t *testing.T) {
	data, err := Encode(NewResponse(StringID("1"), nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result":null`)
}

func TestUnmarshalIgnoresAbsentAndNull(t *testing.T) {
	v := map[string]int{"kept": 1}
	require.NoError(t, Unmarshal(nil, &v))
	require.NoError(t, Unmarshal(json.RawMessage("null"), &v))
	assert.Equal(t, 1, v["kept"])
}
