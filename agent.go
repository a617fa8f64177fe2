package acp

import (
	"context"

	"github.com/markpollack/acp-go/transport"
)

// Agent is the method set an agent implements. The client facade
// invokes these over the wire; the agent facade binds them as inbound
// handlers. Request methods run on their own goroutines and may call
// back into the client through the AgentConn while they execute.
type Agent interface {
	Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error)
	Authenticate(ctx context.Context, req *AuthenticateRequest) (*AuthenticateResponse, error)
	NewSession(ctx context.Context, req *NewSessionRequest) (*NewSessionResponse, error)
	LoadSession(ctx context.Context, req *LoadSessionRequest) (*LoadSessionResponse, error)
	Prompt(ctx context.Context, req *PromptRequest) (*PromptResponse, error)
	SetSessionMode(ctx context.Context, req *SetSessionModeRequest) (*SetSessionModeResponse, error)
	SetSessionModel(ctx context.Context, req *SetSessionModelRequest) (*SetSessionModelResponse, error)
	SetSessionConfigOption(ctx context.Context, req *SetSessionConfigOptionRequest) (*SetSessionConfigOptionResponse, error)

	// Cancel receives the session/cancel notification, best-effort.
	// It must not issue blocking calls on the same connection.
	Cancel(ctx context.Context, n *CancelNotification)
}

// AgentConnAware is implemented by agents that call back into the
// client (file reads, permission requests, streaming updates). BindConn
// runs after the connection is fully built and before the transport
// starts, so the reference is in place by the first inbound dispatch.
type AgentConnAware interface {
	BindConn(conn *AgentConn)
}

// AgentConn is the agent-role facade: it serves the client→agent
// method set and initiates the agent→client one.
type AgentConn struct {
	session *Session
}

// NewAgentConn builds the agent-side connection over tr, binding the
// agent's methods as inbound handlers. The connection is inert until
// Start; if the agent implements AgentConnAware it is handed the
// connection first.
func NewAgentConn(agent Agent, tr transport.Transport, opts ...SessionOption) *AgentConn {
	conn := &AgentConn{}
	bound := append([]SessionOption{
		WithRequestHandler(MethodInitialize, requestHandler(agent.Initialize)),
		WithRequestHandler(MethodAuthenticate, requestHandler(agent.Authenticate)),
		WithRequestHandler(MethodSessionNew, requestHandler(agent.NewSession)),
		WithRequestHandler(MethodSessionLoad, requestHandler(agent.LoadSession)),
		WithRequestHandler(MethodSessionPrompt, requestHandler(agent.Prompt)),
		WithRequestHandler(MethodSessionSetMode, requestHandler(agent.SetSessionMode)),
		WithRequestHandler(MethodSessionSetModel, requestHandler(agent.SetSessionModel)),
		WithRequestHandler(MethodSessionSetConfig, requestHandler(agent.SetSessionConfigOption)),
		WithNotificationHandler(MethodSessionCancel, notificationHandler(agent.Cancel)),
	}, opts...)
	conn.session = NewSession(tr, bound...)

	if aware, ok := agent.(AgentConnAware); ok {
		aware.BindConn(conn)
	}
	return conn
}

// Start begins dispatching. No inbound message is handled before it.
func (c *AgentConn) Start() error { return c.session.Start() }

// Close shuts the connection down gracefully. Idempotent.
func (c *AgentConn) Close() error { return c.session.Close() }

// Done is closed once the connection has fully shut down.
func (c *AgentConn) Done() <-chan struct{} { return c.session.Done() }

// State reports the underlying session state.
func (c *AgentConn) State() State { return c.session.State() }

// ReadTextFile asks the client for file contents.
func (c *AgentConn) ReadTextFile(ctx context.Context, req *ReadTextFileRequest) (*ReadTextFileResponse, error) {
	return call[ReadTextFileResponse](ctx, c.session, MethodReadTextFile, req)
}

// WriteTextFile asks the client to write a file.
func (c *AgentConn) WriteTextFile(ctx context.Context, req *WriteTextFileRequest) (*WriteTextFileResponse, error) {
	return call[WriteTextFileResponse](ctx, c.session, MethodWriteTextFile, req)
}

// RequestPermission asks the client to approve a tool call.
func (c *AgentConn) RequestPermission(ctx context.Context, req *RequestPermissionRequest) (*RequestPermissionResponse, error) {
	return call[RequestPermissionResponse](ctx, c.session, MethodRequestPerm, req)
}

// CreateTerminal starts a command in a client-managed terminal.
func (c *AgentConn) CreateTerminal(ctx context.Context, req *CreateTerminalRequest) (*CreateTerminalResponse, error) {
	return call[CreateTerminalResponse](ctx, c.session, MethodTerminalCreate, req)
}

// TerminalOutput fetches a terminal's accumulated output.
func (c *AgentConn) TerminalOutput(ctx context.Context, req *TerminalOutputRequest) (*TerminalOutputResponse, error) {
	return call[TerminalOutputResponse](ctx, c.session, MethodTerminalOutput, req)
}

// WaitForTerminalExit blocks until the terminal's command exits.
func (c *AgentConn) WaitForTerminalExit(ctx context.Context, req *WaitForTerminalExitRequest) (*WaitForTerminalExitResponse, error) {
	return call[WaitForTerminalExitResponse](ctx, c.session, MethodTerminalWaitExit, req)
}

// KillTerminal kills the terminal's command.
func (c *AgentConn) KillTerminal(ctx context.Context, req *KillTerminalRequest) (*KillTerminalResponse, error) {
	return call[KillTerminalResponse](ctx, c.session, MethodTerminalKill, req)
}

// ReleaseTerminal disposes of a terminal.
func (c *AgentConn) ReleaseTerminal(ctx context.Context, req *ReleaseTerminalRequest) (*ReleaseTerminalResponse, error) {
	return call[ReleaseTerminalResponse](ctx, c.session, MethodTerminalRelease, req)
}

// SessionUpdate streams a session/update notification to the client.
// Returns once the frame is queued.
func (c *AgentConn) SessionUpdate(n *SessionNotification) error {
	return c.session.Notify(MethodSessionUpdate, n)
}
