package acp_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	acp "github.com/markpollack/acp-go"
	"github.com/markpollack/acp-go/acptest"
)

const testTimeout = 5 * time.Second

func TestInitializeHandshake(t *testing.T) {
	client := acptest.NewScriptedClient()
	agent := acptest.NewScriptedAgent()
	clientConn, _ := acptest.Connect(t, client, agent)

	resp, err := clientConn.Initialize(context.Background(), &acp.InitializeRequest{
		ProtocolVersion:    1,
		ClientCapabilities: &acp.ClientCapabilities{},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ProtocolVersion)
	require.NotNil(t, resp.AgentCapabilities)
	assert.True(t, resp.AgentCapabilities.LoadSession)
	assert.Empty(t, resp.AuthMethods)
}

func TestPromptStreamsUpdatesBeforeResolving(t *testing.T) {
	client := acptest.NewScriptedClient()
	agent := acptest.NewScriptedAgent()
	agent.PromptFunc = func(ctx context.Context, req *acp.PromptRequest) (*acp.PromptResponse, error) {
		conn := agent.Conn()
		if err := conn.SessionUpdate(acp.AgentThoughtChunk(req.SessionID, "Analyzing code...")); err != nil {
			return nil, err
		}
		if err := conn.SessionUpdate(acp.AgentMessageChunk(req.SessionID, "Found the issue")); err != nil {
			return nil, err
		}
		return &acp.PromptResponse{StopReason: acp.StopEndTurn}, nil
	}
	clientConn, _ := acptest.Connect(t, client, agent)

	ctx := context.Background()
	_, err := clientConn.Initialize(ctx, &acp.InitializeRequest{ProtocolVersion: 1})
	require.NoError(t, err)
	created, err := clientConn.NewSession(ctx, &acp.NewSessionRequest{CWD: "/work"})
	require.NoError(t, err)

	resp, err := clientConn.Prompt(ctx, &acp.PromptRequest{
		SessionID: created.SessionID,
		Prompt:    []acp.ContentBlock{acp.TextBlock("Fix the failing tests")},
	})
	require.NoError(t, err)
	assert.Equal(t, acp.StopEndTurn, resp.StopReason)

	// Both updates must already be observed, in order, by the time the
	// prompt resolves.
	require.Len(t, client.Updates, 2)
	first := <-client.Updates
	second := <-client.Updates
	assert.Equal(t, acp.UpdateAgentThoughtChunk, first.UpdateKind())
	assert.Equal(t, acp.UpdateAgentMessageChunk, second.UpdateKind())

	var chunk acp.ContentChunk
	require.NoError(t, unmarshalUpdate(first, &chunk))
	assert.Equal(t, "Analyzing code...", chunk.Content.Text)
	require.NoError(t, unmarshalUpdate(second, &chunk))
	assert.Equal(t, "Found the issue", chunk.Content.Text)
}

func unmarshalUpdate(n *acp.SessionNotification, v any) error {
	return json.Unmarshal(n.Update, v)
}

func TestConcurrentPromptsOutOfOrderReplies(t *testing.T) {
	const n = 5

	var mu sync.Mutex
	releases := make([]chan struct{}, 0, n)
	allArrived := make(chan struct{})

	client := acptest.NewScriptedClient()
	agent := acptest.NewScriptedAgent()
	agent.PromptFunc = func(ctx context.Context, req *acp.PromptRequest) (*acp.PromptResponse, error) {
		idx := len(req.Prompt) // 1..n blocks tag the call

		release := make(chan struct{})
		mu.Lock()
		releases = append(releases, release)
		if len(releases) == n {
			close(allArrived)
		}
		mu.Unlock()

		<-release
		return &acp.PromptResponse{
			StopReason: acp.StopEndTurn,
			Usage:      &acp.Usage{InputTokens: idx},
		}, nil
	}
	clientConn, _ := acptest.Connect(t, client, agent)

	type outcome struct {
		idx  int
		resp *acp.PromptResponse
		err  error
	}
	results := make(chan outcome, n)
	for i := 1; i <= n; i++ {
		blocks := make([]acp.ContentBlock, i)
		for j := range blocks {
			blocks[j] = acp.TextBlock("x")
		}
		go func(idx int) {
			resp, err := clientConn.Prompt(context.Background(), &acp.PromptRequest{
				SessionID: acptest.DefaultSessionID,
				Prompt:    blocks,
			})
			results <- outcome{idx: idx, resp: resp, err: err}
		}(i)
	}

	select {
	case <-allArrived:
	case <-time.After(testTimeout):
		t.Fatal("not all prompts reached the agent")
	}

	// Release the handlers in reverse arrival order so replies come
	// back out of order.
	mu.Lock()
	for i := len(releases) - 1; i >= 0; i-- {
		close(releases[i])
	}
	mu.Unlock()

	for i := 0; i < n; i++ {
		select {
		case out := <-results:
			require.NoError(t, out.err)
			assert.Equal(t, out.idx, out.resp.Usage.InputTokens,
				"caller received another call's response")
		case <-time.After(testTimeout):
			t.Fatal("timeout waiting for prompt results")
		}
	}
}

func TestPromptErrorCodeSurvivesRoundTrip(t *testing.T) {
	client := acptest.NewScriptedClient()
	agent := acptest.NewScriptedAgent()
	agent.PromptFunc = func(ctx context.Context, req *acp.PromptRequest) (*acp.PromptResponse, error) {
		return nil, acp.Errorf(acp.CodeInvalidParams, "Invalid prompt content")
	}
	clientConn, _ := acptest.Connect(t, client, agent)

	_, err := clientConn.Prompt(context.Background(), &acp.PromptRequest{
		SessionID: acptest.DefaultSessionID,
	})
	pe, ok := acp.AsError(err)
	require.True(t, ok, "expected protocol error, got %v", err)
	assert.Equal(t, acp.CodeInvalidParams, pe.Code, "typed code must survive, not collapse to -32603")
	assert.Equal(t, "Invalid prompt content", pe.Message)
}

func TestAgentReadsFileDuringPrompt(t *testing.T) {
	client := acptest.NewScriptedClient()
	client.SetFile("/src/Main.java", "public class Main {}")

	observed := make(chan string, 1)
	agent := acptest.NewScriptedAgent()
	agent.PromptFunc = func(ctx context.Context, req *acp.PromptRequest) (*acp.PromptResponse, error) {
		resp, err := agent.Conn().ReadTextFile(ctx, &acp.ReadTextFileRequest{
			SessionID: req.SessionID,
			Path:      "/src/Main.java",
		})
		if err != nil {
			return nil, err
		}
		observed <- resp.Content
		return &acp.PromptResponse{StopReason: acp.StopEndTurn}, nil
	}
	clientConn, _ := acptest.Connect(t, client, agent)

	resp, err := clientConn.Prompt(context.Background(), &acp.PromptRequest{
		SessionID: acptest.DefaultSessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, acp.StopEndTurn, resp.StopReason)
	assert.Equal(t, "public class Main {}", <-observed)
}

func TestCancelNotificationReachesAgent(t *testing.T) {
	client := acptest.NewScriptedClient()
	agent := acptest.NewScriptedAgent()
	clientConn, _ := acptest.Connect(t, client, agent)

	require.NoError(t, clientConn.Cancel(&acp.CancelNotification{SessionID: "s1"}))

	select {
	case n := <-agent.Cancels:
		assert.Equal(t, "s1", n.SessionID)
	case <-time.After(testTimeout):
		t.Fatal("cancel notification not observed by agent")
	}
}

func TestUnsupportedCapabilityFeatureDetection(t *testing.T) {
	// A peer probing a capability the other side lacks sees
	// CAPABILITY_NOT_SUPPORTED and can branch on it.
	client := acptest.NewScriptedClient()
	agent := acptest.NewScriptedAgent()
	_, agentConn := acptest.Connect(t, client, agent)

	// The scripted client rejects terminals with a typed error; probe
	// from the agent side.
	_, err := agentConn.CreateTerminal(context.Background(), &acp.CreateTerminalRequest{
		SessionID: acptest.DefaultSessionID,
		Command:   "ls",
	})
	pe, ok := acp.AsError(err)
	require.True(t, ok)
	assert.True(t, pe.IsCapabilityNotSupported())
}

func TestGracefulCloseUnblocksEverything(t *testing.T) {
	client := acptest.NewScriptedClient()
	agent := acptest.NewScriptedAgent()
	gate := make(chan struct{})
	agent.PromptFunc = func(ctx context.Context, req *acp.PromptRequest) (*acp.PromptResponse, error) {
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return &acp.PromptResponse{StopReason: acp.StopCancelled}, nil
	}
	clientConn, agentConn := acptest.Connect(t, client, agent)

	done := make(chan error, 1)
	go func() {
		_, err := clientConn.Prompt(context.Background(), &acp.PromptRequest{SessionID: acptest.DefaultSessionID})
		done <- err
	}()

	// Give the prompt a moment to reach the agent, then tear down.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, clientConn.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, acp.ErrSessionClosed)
	case <-time.After(testTimeout):
		t.Fatal("prompt did not unblock on close")
	}

	select {
	case <-agentConn.Done():
	case <-time.After(testTimeout):
		t.Fatal("agent connection did not observe termination")
	}
	assert.Equal(t, acp.StateClosed, clientConn.State())
}
