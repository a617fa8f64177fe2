package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	acp "github.com/markpollack/acp-go"
	"github.com/markpollack/acp-go/transport"
	"github.com/markpollack/acp-go/transport/ws"
)

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Serve the echo agent over stdio or WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runAgent(cmd.Context(), cfg)
		},
	}
}

func runAgent(ctx context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	switch cfg.Transport {
	case "stdio":
		tr := transport.NewStdio(os.Stdin, os.Stdout)
		conn := acp.NewAgentConn(newEchoAgent(), tr, acp.WithCallTimeout(cfg.Timeout))
		if err := conn.Start(); err != nil {
			return err
		}
		slog.Info("echo agent serving on stdio")
		select {
		case <-conn.Done():
		case <-ctx.Done():
			conn.Close()
		}
		return nil

	case "ws":
		srv := ws.NewServer(func(c *ws.Conn) {
			conn := acp.NewAgentConn(newEchoAgent(), c, acp.WithCallTimeout(cfg.Timeout))
			if err := conn.Start(); err != nil {
				slog.Error("start agent connection", "error", err)
			}
		}, ws.WithPath(cfg.WS.Path))

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe(cfg.WS.Addr) }()
		slog.Info("echo agent serving on websocket", "addr", cfg.WS.Addr)
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return srv.Shutdown(context.Background())
		}

	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// echoAgent is a minimal agent: it streams a thought chunk, echoes the
// prompt text back as a message chunk, and honors session/cancel.
type echoAgent struct {
	conn *acp.AgentConn

	mu        sync.Mutex
	sessions  map[string]bool
	cancelled map[string]bool
}

func newEchoAgent() *echoAgent {
	return &echoAgent{
		sessions:  make(map[string]bool),
		cancelled: make(map[string]bool),
	}
}

var _ acp.Agent = (*echoAgent)(nil)
var _ acp.AgentConnAware = (*echoAgent)(nil)

func (a *echoAgent) BindConn(conn *acp.AgentConn) { a.conn = conn }

func (a *echoAgent) Initialize(ctx context.Context, req *acp.InitializeRequest) (*acp.InitializeResponse, error) {
	version := min(req.ProtocolVersion, acp.ProtocolVersion)
	return &acp.InitializeResponse{
		ProtocolVersion: version,
		AgentInfo:       &acp.Implementation{Name: "acpdemo-echo", Version: "0.1.0"},
		AgentCapabilities: &acp.AgentCapabilities{
			LoadSession: false,
		},
	}, nil
}

func (a *echoAgent) Authenticate(ctx context.Context, req *acp.AuthenticateRequest) (*acp.AuthenticateResponse, error) {
	return &acp.AuthenticateResponse{}, nil
}

func (a *echoAgent) NewSession(ctx context.Context, req *acp.NewSessionRequest) (*acp.NewSessionResponse, error) {
	id := uuid.New().String()
	a.mu.Lock()
	a.sessions[id] = true
	a.mu.Unlock()
	slog.Info("session created", "sessionId", id, "cwd", req.CWD)
	return &acp.NewSessionResponse{SessionID: id}, nil
}

func (a *echoAgent) LoadSession(ctx context.Context, req *acp.LoadSessionRequest) (*acp.LoadSessionResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "load session not supported")
}

func (a *echoAgent) Prompt(ctx context.Context, req *acp.PromptRequest) (*acp.PromptResponse, error) {
	a.mu.Lock()
	known := a.sessions[req.SessionID]
	a.cancelled[req.SessionID] = false
	a.mu.Unlock()
	if !known {
		return nil, acp.Errorf(acp.CodeSessionNotFound, "unknown session %s", req.SessionID)
	}

	var text []string
	for _, block := range req.Prompt {
		if block.Type == "text" {
			text = append(text, block.Text)
		}
	}

	if err := a.conn.SessionUpdate(acp.AgentThoughtChunk(req.SessionID, "Echoing prompt...")); err != nil {
		return nil, err
	}
	if err := a.conn.SessionUpdate(acp.AgentMessageChunk(req.SessionID, strings.Join(text, "\n"))); err != nil {
		return nil, err
	}

	a.mu.Lock()
	cancelled := a.cancelled[req.SessionID]
	a.mu.Unlock()
	if cancelled {
		return &acp.PromptResponse{StopReason: acp.StopCancelled}, nil
	}
	return &acp.PromptResponse{StopReason: acp.StopEndTurn}, nil
}

func (a *echoAgent) SetSessionMode(ctx context.Context, req *acp.SetSessionModeRequest) (*acp.SetSessionModeResponse, error) {
	return &acp.SetSessionModeResponse{}, nil
}

func (a *echoAgent) SetSessionModel(ctx context.Context, req *acp.SetSessionModelRequest) (*acp.SetSessionModelResponse, error) {
	return &acp.SetSessionModelResponse{}, nil
}

func (a *echoAgent) SetSessionConfigOption(ctx context.Context, req *acp.SetSessionConfigOptionRequest) (*acp.SetSessionConfigOptionResponse, error) {
	return &acp.SetSessionConfigOptionResponse{}, nil
}

func (a *echoAgent) Cancel(ctx context.Context, n *acp.CancelNotification) {
	a.mu.Lock()
	a.cancelled[n.SessionID] = true
	a.mu.Unlock()
	slog.Info("cancel received", "sessionId", n.SessionID)
}
