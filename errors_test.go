package acp

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		code int
		pred func(*Error) bool
	}{
		{CodeParseError, (*Error).IsParseError},
		{CodeInvalidRequest, (*Error).IsInvalidRequest},
		{CodeMethodNotFound, (*Error).IsMethodNotFound},
		{CodeInvalidParams, (*Error).IsInvalidParams},
		{CodeInternalError, (*Error).IsInternalError},
		{CodeConcurrentPrompt, (*Error).IsConcurrentPrompt},
		{CodeSessionNotFound, (*Error).IsSessionNotFound},
		{CodeCapabilityNotSupported, (*Error).IsCapabilityNotSupported},
		{CodeAuthRequired, (*Error).IsAuthRequired},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := Errorf(tt.code, "boom")
			assert.True(t, tt.pred(err))
			assert.False(t, tt.pred(Errorf(-1, "other")))
		})
	}
}

func TestErrorWireConversionLossless(t *testing.T) {
	in := Errorf(CodeConcurrentPrompt, "another prompt is running").
		WithData(map[string]string{"sessionId": "s1"})

	we := in.toWire()
	out := errorFromWire(we)

	assert.Equal(t, in.Code, out.Code)
	assert.Equal(t, in.Message, out.Message)
	assert.JSONEq(t, string(in.Data), string(out.Data))
}

func TestErrorWithDataKeepsErrorOnMarshalFailure(t *testing.T) {
	in := Errorf(CodeInternalError, "boom")
	out := in.WithData(func() {}) // unmarshalable
	assert.Equal(t, in.Code, out.Code)
	assert.Nil(t, out.Data)
}

func TestAsErrorUnwraps(t *testing.T) {
	inner := Errorf(CodeSessionNotFound, "no session s9")
	wrapped := fmt.Errorf("prompt failed: %w", inner)

	pe, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeSessionNotFound, pe.Code)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorMessageFormat(t *testing.T) {
	err := &Error{Code: CodeMethodNotFound, Message: "method not found: x/y", Data: json.RawMessage(`{}`)}
	assert.Equal(t, "acp: rpc error -32601: method not found: x/y", err.Error())
}
