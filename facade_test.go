package acp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markpollack/acp-go/transport"
	"github.com/markpollack/acp-go/wire"
)

// nullAgent answers every method successfully with a minimal response.
type nullAgent struct {
	prompts chan *PromptRequest
	cancels chan *CancelNotification
}

func (a *nullAgent) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	return &InitializeResponse{ProtocolVersion: min(req.ProtocolVersion, ProtocolVersion)}, nil
}
func (a *nullAgent) Authenticate(ctx context.Context, req *AuthenticateRequest) (*AuthenticateResponse, error) {
	return &AuthenticateResponse{}, nil
}
func (a *nullAgent) NewSession(ctx context.Context, req *NewSessionRequest) (*NewSessionResponse, error) {
	return &NewSessionResponse{SessionID: "s1"}, nil
}
func (a *nullAgent) LoadSession(ctx context.Context, req *LoadSessionRequest) (*LoadSessionResponse, error) {
	return &LoadSessionResponse{}, nil
}
func (a *nullAgent) Prompt(ctx context.Context, req *PromptRequest) (*PromptResponse, error) {
	if a.prompts != nil {
		a.prompts <- req
	}
	return &PromptResponse{StopReason: StopEndTurn}, nil
}
func (a *nullAgent) SetSessionMode(ctx context.Context, req *SetSessionModeRequest) (*SetSessionModeResponse, error) {
	return &SetSessionModeResponse{}, nil
}
func (a *nullAgent) SetSessionModel(ctx context.Context, req *SetSessionModelRequest) (*SetSessionModelResponse, error) {
	return &SetSessionModelResponse{}, nil
}
func (a *nullAgent) SetSessionConfigOption(ctx context.Context, req *SetSessionConfigOptionRequest) (*SetSessionConfigOptionResponse, error) {
	return &SetSessionConfigOptionResponse{}, nil
}
func (a *nullAgent) Cancel(ctx context.Context, n *CancelNotification) {
	if a.cancels != nil {
		a.cancels <- n
	}
}

// newAgentPeer starts an AgentConn against a raw pipe end so tests can
// speak wire frames at the facade.
func newAgentPeer(t *testing.T, agent Agent) *rawPeer {
	t.Helper()

	atr, ptr := transport.Pipe()
	peer := &rawPeer{tr: ptr, msgs: make(chan wire.Message, 64)}
	require.NoError(t, ptr.Start(func(msg wire.Message) { peer.msgs <- msg }))

	conn := NewAgentConn(agent, atr)
	require.NoError(t, conn.Start())
	t.Cleanup(func() { conn.Close() })
	return peer
}

func TestFacadeRejectsMalformedParams(t *testing.T) {
	peer := newAgentPeer(t, &nullAgent{})

	// prompt must be an array of blocks, not a string.
	peer.send(t, wire.NewRequest(wire.StringID("1"), MethodSessionPrompt,
		[]byte(`{"sessionId":"s1","prompt":"not-an-array"}`)))

	resp := peer.expect(t)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestFacadeHandlesAbsentParams(t *testing.T) {
	prompts := make(chan *PromptRequest, 1)
	peer := newAgentPeer(t, &nullAgent{prompts: prompts})

	// No params at all: the handler sees a zero request.
	peer.send(t, wire.NewRequest(wire.StringID("1"), MethodSessionPrompt, nil))

	resp := peer.expect(t)
	require.Nil(t, resp.Error)
	req := <-prompts
	assert.Empty(t, req.SessionID)
}

func TestFacadeDropsMalformedNotification(t *testing.T) {
	cancels := make(chan *CancelNotification, 1)
	peer := newAgentPeer(t, &nullAgent{cancels: cancels})

	peer.send(t, wire.NewNotification(MethodSessionCancel, []byte(`{"sessionId":42}`)))
	peer.send(t, wire.NewNotification(MethodSessionCancel, []byte(`{"sessionId":"s1"}`)))

	select {
	case n := <-cancels:
		assert.Equal(t, "s1", n.SessionID, "malformed notification must be skipped, not crash dispatch")
	case <-time.After(testTimeout):
		t.Fatal("well-formed cancel not delivered")
	}
	assert.Empty(t, cancels)
}

func TestAgentConnServesFullMethodSet(t *testing.T) {
	peer := newAgentPeer(t, &nullAgent{})

	methods := []string{
		MethodInitialize, MethodAuthenticate, MethodSessionNew,
		MethodSessionLoad, MethodSessionPrompt, MethodSessionSetMode,
		MethodSessionSetModel, MethodSessionSetConfig,
	}
	for i, method := range methods {
		peer.send(t, wire.NewRequest(wire.Int64ID(int64(i+1)), method, nil))
		resp := peer.expect(t)
		assert.Nilf(t, resp.Error, "method %s: %v", method, resp.Error)
	}
}
