// Package acptest provides scripted peers and in-memory wiring for
// testing code built on the acp package. A ScriptedAgent or
// ScriptedClient answers every protocol method with a sensible default;
// the methods that have a corresponding ...Func field are overridden by
// assigning it.
package acptest

import (
	"context"
	"sync"
	"testing"

	acp "github.com/markpollack/acp-go"
	"github.com/markpollack/acp-go/transport"
)

// DefaultSessionID is the session id ScriptedAgent hands out.
const DefaultSessionID = "test-session"

// Connect wires a client and an agent over an in-memory transport pair,
// starts both connections, and registers cleanup. The agent side starts
// first so the client's opening request cannot race the handler wiring.
func Connect(t testing.TB, client acp.Client, agent acp.Agent, opts ...acp.SessionOption) (*acp.ClientConn, *acp.AgentConn) {
	t.Helper()

	ctr, atr := transport.Pipe()
	agentConn := acp.NewAgentConn(agent, atr, opts...)
	clientConn := acp.NewClientConn(client, ctr, opts...)

	if err := agentConn.Start(); err != nil {
		t.Fatalf("start agent conn: %v", err)
	}
	if err := clientConn.Start(); err != nil {
		t.Fatalf("start client conn: %v", err)
	}
	t.Cleanup(func() {
		clientConn.Close()
		agentConn.Close()
	})
	return clientConn, agentConn
}

// ScriptedAgent is an acp.Agent whose behavior is overridden per method
// via function fields. Zero-value fields fall back to defaults that
// keep a handshake-and-prompt exchange working.
type ScriptedAgent struct {
	conn *acp.AgentConn

	InitializeFunc  func(ctx context.Context, req *acp.InitializeRequest) (*acp.InitializeResponse, error)
	NewSessionFunc  func(ctx context.Context, req *acp.NewSessionRequest) (*acp.NewSessionResponse, error)
	LoadSessionFunc func(ctx context.Context, req *acp.LoadSessionRequest) (*acp.LoadSessionResponse, error)
	PromptFunc      func(ctx context.Context, req *acp.PromptRequest) (*acp.PromptResponse, error)

	// Cancels receives every session/cancel notification observed;
	// one that arrives while the channel is full is dropped.
	Cancels chan *acp.CancelNotification
}

// NewScriptedAgent creates a scripted agent with a buffered cancel
// channel.
func NewScriptedAgent() *ScriptedAgent {
	return &ScriptedAgent{Cancels: make(chan *acp.CancelNotification, 16)}
}

var _ acp.Agent = (*ScriptedAgent)(nil)
var _ acp.AgentConnAware = (*ScriptedAgent)(nil)

// BindConn captures the connection so scripted handlers can call back
// into the client.
func (a *ScriptedAgent) BindConn(conn *acp.AgentConn) { a.conn = conn }

// Conn returns the bound agent connection.
func (a *ScriptedAgent) Conn() *acp.AgentConn { return a.conn }

func (a *ScriptedAgent) Initialize(ctx context.Context, req *acp.InitializeRequest) (*acp.InitializeResponse, error) {
	if a.InitializeFunc != nil {
		return a.InitializeFunc(ctx, req)
	}
	version := min(req.ProtocolVersion, acp.ProtocolVersion)
	return &acp.InitializeResponse{
		ProtocolVersion:   version,
		AgentCapabilities: &acp.AgentCapabilities{LoadSession: true},
		AuthMethods:       []acp.AuthMethod{},
	}, nil
}

func (a *ScriptedAgent) Authenticate(ctx context.Context, req *acp.AuthenticateRequest) (*acp.AuthenticateResponse, error) {
	return &acp.AuthenticateResponse{}, nil
}

func (a *ScriptedAgent) NewSession(ctx context.Context, req *acp.NewSessionRequest) (*acp.NewSessionResponse, error) {
	if a.NewSessionFunc != nil {
		return a.NewSessionFunc(ctx, req)
	}
	return &acp.NewSessionResponse{SessionID: DefaultSessionID}, nil
}

func (a *ScriptedAgent) LoadSession(ctx context.Context, req *acp.LoadSessionRequest) (*acp.LoadSessionResponse, error) {
	if a.LoadSessionFunc != nil {
		return a.LoadSessionFunc(ctx, req)
	}
	return &acp.LoadSessionResponse{}, nil
}

func (a *ScriptedAgent) Prompt(ctx context.Context, req *acp.PromptRequest) (*acp.PromptResponse, error) {
	if a.PromptFunc != nil {
		return a.PromptFunc(ctx, req)
	}
	return &acp.PromptResponse{StopReason: acp.StopEndTurn}, nil
}

func (a *ScriptedAgent) SetSessionMode(ctx context.Context, req *acp.SetSessionModeRequest) (*acp.SetSessionModeResponse, error) {
	return &acp.SetSessionModeResponse{}, nil
}

func (a *ScriptedAgent) SetSessionModel(ctx context.Context, req *acp.SetSessionModelRequest) (*acp.SetSessionModelResponse, error) {
	return &acp.SetSessionModelResponse{}, nil
}

func (a *ScriptedAgent) SetSessionConfigOption(ctx context.Context, req *acp.SetSessionConfigOptionRequest) (*acp.SetSessionConfigOptionResponse, error) {
	return &acp.SetSessionConfigOptionResponse{}, nil
}

func (a *ScriptedAgent) Cancel(ctx context.Context, n *acp.CancelNotification) {
	if a.Cancels != nil {
		select {
		case a.Cancels <- n:
		default:
		}
	}
}

// ScriptedClient is an acp.Client with per-method overrides. Files
// backs the fs methods; Updates records the session/update stream in
// arrival order.
type ScriptedClient struct {
	conn *acp.ClientConn

	mu sync.Mutex

	// Files backs ReadTextFile and receives WriteTextFile content.
	// Guard access with SetFile/GetFile when handlers may be in flight.
	Files map[string]string

	// Updates receives every session/update notification in order; one
	// that arrives while the channel is full is dropped.
	Updates chan *acp.SessionNotification

	ReadTextFileFunc      func(ctx context.Context, req *acp.ReadTextFileRequest) (*acp.ReadTextFileResponse, error)
	RequestPermissionFunc func(ctx context.Context, req *acp.RequestPermissionRequest) (*acp.RequestPermissionResponse, error)
}

// NewScriptedClient creates a scripted client with an empty file map
// and a buffered update channel.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		Files:   make(map[string]string),
		Updates: make(chan *acp.SessionNotification, 64),
	}
}

var _ acp.Client = (*ScriptedClient)(nil)
var _ acp.ClientConnAware = (*ScriptedClient)(nil)

// BindConn captures the connection for tests that call back.
func (c *ScriptedClient) BindConn(conn *acp.ClientConn) { c.conn = conn }

// Conn returns the bound client connection.
func (c *ScriptedClient) Conn() *acp.ClientConn { return c.conn }

// SetFile seeds file content.
func (c *ScriptedClient) SetFile(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Files[path] = content
}

// GetFile reads file content and whether it exists.
func (c *ScriptedClient) GetFile(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.Files[path]
	return content, ok
}

func (c *ScriptedClient) ReadTextFile(ctx context.Context, req *acp.ReadTextFileRequest) (*acp.ReadTextFileResponse, error) {
	if c.ReadTextFileFunc != nil {
		return c.ReadTextFileFunc(ctx, req)
	}
	content, ok := c.GetFile(req.Path)
	if !ok {
		return nil, acp.Errorf(acp.CodeInvalidParams, "no such file: %s", req.Path)
	}
	return &acp.ReadTextFileResponse{Content: content}, nil
}

func (c *ScriptedClient) WriteTextFile(ctx context.Context, req *acp.WriteTextFileRequest) (*acp.WriteTextFileResponse, error) {
	c.SetFile(req.Path, req.Content)
	return &acp.WriteTextFileResponse{}, nil
}

func (c *ScriptedClient) RequestPermission(ctx context.Context, req *acp.RequestPermissionRequest) (*acp.RequestPermissionResponse, error) {
	if c.RequestPermissionFunc != nil {
		return c.RequestPermissionFunc(ctx, req)
	}
	// Approve with the first allow option, if any.
	for _, opt := range req.Options {
		if opt.Kind == acp.PermissionAllowOnce || opt.Kind == acp.PermissionAllowAlways {
			return &acp.RequestPermissionResponse{
				Outcome: acp.PermissionOutcome{Outcome: "selected", OptionID: opt.OptionID},
			}, nil
		}
	}
	return &acp.RequestPermissionResponse{
		Outcome: acp.PermissionOutcome{Outcome: "cancelled"},
	}, nil
}

func (c *ScriptedClient) CreateTerminal(ctx context.Context, req *acp.CreateTerminalRequest) (*acp.CreateTerminalResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (c *ScriptedClient) TerminalOutput(ctx context.Context, req *acp.TerminalOutputRequest) (*acp.TerminalOutputResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (c *ScriptedClient) WaitForTerminalExit(ctx context.Context, req *acp.WaitForTerminalExitRequest) (*acp.WaitForTerminalExitResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (c *ScriptedClient) KillTerminal(ctx context.Context, req *acp.KillTerminalRequest) (*acp.KillTerminalResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (c *ScriptedClient) ReleaseTerminal(ctx context.Context, req *acp.ReleaseTerminalRequest) (*acp.ReleaseTerminalResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (c *ScriptedClient) SessionUpdate(ctx context.Context, n *acp.SessionNotification) {
	if c.Updates != nil {
		select {
		case c.Updates <- n:
		default:
		}
	}
}
