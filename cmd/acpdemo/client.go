package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	acp "github.com/markpollack/acp-go"
	"github.com/markpollack/acp-go/transport/ws"
)

func newClientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client [prompt...]",
		Short: "Connect to a WebSocket agent and send one prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg, strings.Join(args, " "))
		},
	}
}

func runClient(ctx context.Context, cfg Config, prompt string) error {
	tr, err := ws.Dial(ctx, cfg.WS.URL, ws.WithConnectTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	conn := acp.NewClientConn(&printingClient{}, tr, acp.WithCallTimeout(cfg.Timeout))
	if err := conn.Start(); err != nil {
		return err
	}
	defer conn.Close()

	initResp, err := conn.Initialize(ctx, &acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersion,
		ClientInfo:      &acp.Implementation{Name: "acpdemo-client", Version: "0.1.0"},
		ClientCapabilities: &acp.ClientCapabilities{
			FS: &acp.FileSystemCapability{ReadTextFile: true},
		},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	slog.Info("connected", "protocolVersion", initResp.ProtocolVersion)

	created, err := conn.NewSession(ctx, &acp.NewSessionRequest{CWD: "/", MCPServers: []acp.MCPServer{}})
	if err != nil {
		return fmt.Errorf("session/new: %w", err)
	}

	resp, err := conn.Prompt(ctx, &acp.PromptRequest{
		SessionID: created.SessionID,
		Prompt:    []acp.ContentBlock{acp.TextBlock(prompt)},
	})
	if err != nil {
		if pe, ok := acp.AsError(err); ok {
			return fmt.Errorf("prompt rejected (code %d): %s", pe.Code, pe.Message)
		}
		return fmt.Errorf("prompt: %w", err)
	}
	fmt.Printf("\n[turn ended: %s]\n", resp.StopReason)
	return nil
}

// printingClient renders session updates to stdout and declines
// everything else.
type printingClient struct{}

var _ acp.Client = (*printingClient)(nil)

func (printingClient) SessionUpdate(ctx context.Context, n *acp.SessionNotification) {
	var chunk acp.ContentChunk
	if err := json.Unmarshal(n.Update, &chunk); err != nil {
		return
	}
	switch chunk.SessionUpdate {
	case acp.UpdateAgentThoughtChunk:
		fmt.Printf("(thinking) %s\n", chunk.Content.Text)
	case acp.UpdateAgentMessageChunk:
		fmt.Println(chunk.Content.Text)
	}
}

func (printingClient) ReadTextFile(ctx context.Context, req *acp.ReadTextFileRequest) (*acp.ReadTextFileResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "file access not granted")
}

func (printingClient) WriteTextFile(ctx context.Context, req *acp.WriteTextFileRequest) (*acp.WriteTextFileResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "file access not granted")
}

func (printingClient) RequestPermission(ctx context.Context, req *acp.RequestPermissionRequest) (*acp.RequestPermissionResponse, error) {
	// Auto-reject: the demo client has no interactive approval flow.
	for _, opt := range req.Options {
		if opt.Kind == acp.PermissionRejectOnce {
			return &acp.RequestPermissionResponse{
				Outcome: acp.PermissionOutcome{Outcome: "selected", OptionID: opt.OptionID},
			}, nil
		}
	}
	return &acp.RequestPermissionResponse{
		Outcome: acp.PermissionOutcome{Outcome: "cancelled"},
	}, nil
}

func (printingClient) CreateTerminal(ctx context.Context, req *acp.CreateTerminalRequest) (*acp.CreateTerminalResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (printingClient) TerminalOutput(ctx context.Context, req *acp.TerminalOutputRequest) (*acp.TerminalOutputResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (printingClient) WaitForTerminalExit(ctx context.Context, req *acp.WaitForTerminalExitRequest) (*acp.WaitForTerminalExitResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (printingClient) KillTerminal(ctx context.Context, req *acp.KillTerminalRequest) (*acp.KillTerminalResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}

func (printingClient) ReleaseTerminal(ctx context.Context, req *acp.ReleaseTerminalRequest) (*acp.ReleaseTerminalResponse, error) {
	return nil, acp.Errorf(acp.CodeCapabilityNotSupported, "terminal not supported")
}
