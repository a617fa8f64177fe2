package acp

import (
	"context"

	"github.com/markpollack/acp-go/transport"
)

// Client is the method set a host implements: the callbacks an agent
// issues while it works, plus the session/update stream. Request
// methods run on their own goroutines.
type Client interface {
	ReadTextFile(ctx context.Context, req *ReadTextFileRequest) (*ReadTextFileResponse, error)
	WriteTextFile(ctx context.Context, req *WriteTextFileRequest) (*WriteTextFileResponse, error)
	RequestPermission(ctx context.Context, req *RequestPermissionRequest) (*RequestPermissionResponse, error)
	CreateTerminal(ctx context.Context, req *CreateTerminalRequest) (*CreateTerminalResponse, error)
	TerminalOutput(ctx context.Context, req *TerminalOutputRequest) (*TerminalOutputResponse, error)
	WaitForTerminalExit(ctx context.Context, req *WaitForTerminalExitRequest) (*WaitForTerminalExitResponse, error)
	KillTerminal(ctx context.Context, req *KillTerminalRequest) (*KillTerminalResponse, error)
	ReleaseTerminal(ctx context.Context, req *ReleaseTerminalRequest) (*ReleaseTerminalResponse, error)

	// SessionUpdate consumes session/update notifications. Updates from
	// one peer arrive in the order they were sent. It must not issue
	// blocking calls on the same connection.
	SessionUpdate(ctx context.Context, n *SessionNotification)
}

// ClientConnAware is the client-side analogue of AgentConnAware.
type ClientConnAware interface {
	BindConn(conn *ClientConn)
}

// ClientConn is the client-role facade: it initiates the client→agent
// method set and serves the agent→client one.
type ClientConn struct {
	session *Session
}

// NewClientConn builds the client-side connection over tr, binding the
// client's methods as inbound handlers. The connection is inert until
// Start; if the client implements ClientConnAware it is handed the
// connection first.
func NewClientConn(client Client, tr transport.Transport, opts ...SessionOption) *ClientConn {
	conn := &ClientConn{}
	bound := append([]SessionOption{
		WithRequestHandler(MethodReadTextFile, requestHandler(client.ReadTextFile)),
		WithRequestHandler(MethodWriteTextFile, requestHandler(client.WriteTextFile)),
		WithRequestHandler(MethodRequestPerm, requestHandler(client.RequestPermission)),
		WithRequestHandler(MethodTerminalCreate, requestHandler(client.CreateTerminal)),
		WithRequestHandler(MethodTerminalOutput, requestHandler(client.TerminalOutput)),
		WithRequestHandler(MethodTerminalWaitExit, requestHandler(client.WaitForTerminalExit)),
		WithRequestHandler(MethodTerminalKill, requestHandler(client.KillTerminal)),
		WithRequestHandler(MethodTerminalRelease, requestHandler(client.ReleaseTerminal)),
		WithNotificationHandler(MethodSessionUpdate, notificationHandler(client.SessionUpdate)),
	}, opts...)
	conn.session = NewSession(tr, bound...)

	if aware, ok := client.(ClientConnAware); ok {
		aware.BindConn(conn)
	}
	return conn
}

// Start begins dispatching. No inbound message is handled before it.
func (c *ClientConn) Start() error { return c.session.Start() }

// Close shuts the connection down gracefully. Idempotent.
func (c *ClientConn) Close() error { return c.session.Close() }

// Done is closed once the connection has fully shut down.
func (c *ClientConn) Done() <-chan struct{} { return c.session.Done() }

// State reports the underlying session state.
func (c *ClientConn) State() State { return c.session.State() }

// Initialize performs the protocol handshake. The effective protocol
// version is the smaller of the two peers' versions; capability records
// pass through to the application uninterpreted.
func (c *ClientConn) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	return call[InitializeResponse](ctx, c.session, MethodInitialize, req)
}

// Authenticate selects one of the agent's advertised auth methods.
func (c *ClientConn) Authenticate(ctx context.Context, req *AuthenticateRequest) (*AuthenticateResponse, error) {
	return call[AuthenticateResponse](ctx, c.session, MethodAuthenticate, req)
}

// NewSession creates a new agent session.
func (c *ClientConn) NewSession(ctx context.Context, req *NewSessionRequest) (*NewSessionResponse, error) {
	return call[NewSessionResponse](ctx, c.session, MethodSessionNew, req)
}

// LoadSession resumes an existing session, if the agent supports it.
func (c *ClientConn) LoadSession(ctx context.Context, req *LoadSessionRequest) (*LoadSessionResponse, error) {
	return call[LoadSessionResponse](ctx, c.session, MethodSessionLoad, req)
}

// Prompt sends a user turn and blocks until the agent's turn completes.
// Streaming output arrives through the client's SessionUpdate before
// the response resolves.
func (c *ClientConn) Prompt(ctx context.Context, req *PromptRequest) (*PromptResponse, error) {
	return call[PromptResponse](ctx, c.session, MethodSessionPrompt, req)
}

// SetSessionMode sets the session operating mode.
func (c *ClientConn) SetSessionMode(ctx context.Context, req *SetSessionModeRequest) (*SetSessionModeResponse, error) {
	return call[SetSessionModeResponse](ctx, c.session, MethodSessionSetMode, req)
}

// SetSessionModel selects the session model.
func (c *ClientConn) SetSessionModel(ctx context.Context, req *SetSessionModelRequest) (*SetSessionModelResponse, error) {
	return call[SetSessionModelResponse](ctx, c.session, MethodSessionSetModel, req)
}

// SetSessionConfigOption sets a session config option.
func (c *ClientConn) SetSessionConfigOption(ctx context.Context, req *SetSessionConfigOptionRequest) (*SetSessionConfigOptionResponse, error) {
	return call[SetSessionConfigOptionResponse](ctx, c.session, MethodSessionSetConfig, req)
}

// Cancel sends the session/cancel notification, fire-and-forget. The
// prompt in flight still completes (typically with StopCancelled); no
// reply arrives for the cancel itself.
func (c *ClientConn) Cancel(n *CancelNotification) error {
	return c.session.Notify(MethodSessionCancel, n)
}
