package acp

import "encoding/json"

// JSON-RPC 2.0 method names for the Agent Client Protocol.
const (
	// Client → agent.
	MethodInitialize       = "initialize"
	MethodAuthenticate     = "authenticate"
	MethodSessionNew       = "session/new"
	MethodSessionLoad      = "session/load"
	MethodSessionPrompt    = "session/prompt"
	MethodSessionSetMode   = "session/set_mode"
	MethodSessionSetModel  = "session/set_model"
	MethodSessionSetConfig = "session/set_config_option"
	MethodSessionCancel    = "session/cancel" // notification

	// Agent → client.
	MethodReadTextFile     = "fs/read_text_file"
	MethodWriteTextFile    = "fs/write_text_file"
	MethodRequestPerm      = "session/request_permission"
	MethodTerminalCreate   = "terminal/create"
	MethodTerminalOutput   = "terminal/output"
	MethodTerminalRelease  = "terminal/release"
	MethodTerminalWaitExit = "terminal/wait_for_exit"
	MethodTerminalKill     = "terminal/kill"
	MethodSessionUpdate    = "session/update" // notification
)

// ProtocolVersion is the protocol revision this SDK speaks. The
// effective version of a connection is the smaller of the client's
// advertised and the agent's supported version.
const ProtocolVersion = 1

// --- Initialize ---

// InitializeRequest begins the capability handshake.
type InitializeRequest struct {
	ProtocolVersion    int                 `json:"protocolVersion"`
	ClientCapabilities *ClientCapabilities `json:"clientCapabilities,omitempty"`
	ClientInfo         *Implementation     `json:"clientInfo,omitempty"`
}

// InitializeResponse is the agent's half of the handshake.
type InitializeResponse struct {
	ProtocolVersion   int                `json:"protocolVersion"`
	AgentCapabilities *AgentCapabilities `json:"agentCapabilities,omitempty"`
	AgentInfo         *Implementation    `json:"agentInfo,omitempty"`
	AuthMethods       []AuthMethod       `json:"authMethods,omitempty"`
}

// Implementation identifies a client or agent build.
type Implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// ClientCapabilities declares which client-side operations the client supports.
type ClientCapabilities struct {
	FS       *FileSystemCapability `json:"fs,omitempty"`
	Terminal bool                  `json:"terminal,omitempty"`
}

// FileSystemCapability declares file system operations the client supports.
type FileSystemCapability struct {
	ReadTextFile  bool `json:"readTextFile,omitempty"`
	WriteTextFile bool `json:"writeTextFile,omitempty"`
}

// AgentCapabilities declares what the agent supports.
type AgentCapabilities struct {
	LoadSession bool `json:"loadSession,omitempty"`
}

// AuthMethod describes an authentication method offered by the agent.
type AuthMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AuthenticateRequest selects one of the agent's advertised auth methods.
type AuthenticateRequest struct {
	MethodID string `json:"methodId"`
}

// AuthenticateResponse acknowledges authentication.
type AuthenticateResponse struct{}

// --- Sessions ---

// NewSessionRequest creates a new agent session.
type NewSessionRequest struct {
	CWD        string      `json:"cwd"`
	MCPServers []MCPServer `json:"mcpServers"`
}

// NewSessionResponse is the response to session/new.
type NewSessionResponse struct {
	SessionID     string                `json:"sessionId"`
	Modes         *SessionModeState     `json:"modes,omitempty"`
	Models        *SessionModelState    `json:"models,omitempty"`
	ConfigOptions []SessionConfigOption `json:"configOptions,omitempty"`
}

// LoadSessionRequest resumes an existing session.
type LoadSessionRequest struct {
	SessionID  string      `json:"sessionId"`
	CWD        string      `json:"cwd"`
	MCPServers []MCPServer `json:"mcpServers"`
}

// LoadSessionResponse is the response to session/load.
// No SessionID field — the caller keeps using the id it resumed.
type LoadSessionResponse struct {
	Modes         *SessionModeState     `json:"modes,omitempty"`
	Models        *SessionModelState    `json:"models,omitempty"`
	ConfigOptions []SessionConfigOption `json:"configOptions,omitempty"`
}

// MCPServer describes an MCP server to attach to the session.
type MCPServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// SessionModeState describes the agent's current and available operating modes.
type SessionModeState struct {
	CurrentModeID  string        `json:"currentModeId"`
	AvailableModes []SessionMode `json:"availableModes"`
}

// SessionMode describes a single operating mode.
type SessionMode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SessionModelState describes the agent's current and available models.
type SessionModelState struct {
	CurrentModelID  string      `json:"currentModelId"`
	AvailableModels []ModelInfo `json:"availableModels"`
}

// ModelInfo describes a model available to the agent.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SessionConfigOption describes a configurable session option.
type SessionConfigOption struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Category     string               `json:"category,omitempty"`
	Type         string               `json:"type,omitempty"`
	CurrentValue string               `json:"currentValue,omitempty"`
	Options      []ConfigOptionChoice `json:"options,omitempty"`
}

// ConfigOptionChoice is one selectable value for a config option.
type ConfigOptionChoice struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// SetSessionModeRequest sets the session operating mode.
type SetSessionModeRequest struct {
	SessionID string `json:"sessionId"`
	ModeID    string `json:"modeId"`
}

// SetSessionModeResponse acknowledges a mode change.
type SetSessionModeResponse struct{}

// SetSessionModelRequest selects the session model.
type SetSessionModelRequest struct {
	SessionID string `json:"sessionId"`
	ModelID   string `json:"modelId"`
}

// SetSessionModelResponse acknowledges a model change.
type SetSessionModelResponse struct{}

// SetSessionConfigOptionRequest sets a session config option.
type SetSessionConfigOptionRequest struct {
	SessionID string `json:"sessionId"`
	ConfigID  string `json:"configId"`
	Value     string `json:"value"`
}

// SetSessionConfigOptionResponse acknowledges a config change.
type SetSessionConfigOptionResponse struct{}

// CancelNotification asks the agent to abort the in-flight turn.
// Fire-and-forget: there is no reply, and delivery is best-effort.
type CancelNotification struct {
	SessionID string `json:"sessionId"`
}

// --- Prompt ---

// ContentBlock is a single content element in a prompt.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// PromptRequest sends a user message to the session.
type PromptRequest struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// StopReason indicates why the agent's turn ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopCancelled StopReason = "cancelled"
	StopMaxTokens StopReason = "max_tokens"
	StopMaxTurns  StopReason = "max_turn_requests"
	StopRefusal   StopReason = "refusal"
)

// PromptResponse is returned when a prompt turn completes.
type PromptResponse struct {
	StopReason StopReason `json:"stopReason,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
}

// Usage carries token accounting for a prompt turn.
type Usage struct {
	InputTokens       int `json:"inputTokens"`
	OutputTokens      int `json:"outputTokens"`
	TotalTokens       int `json:"totalTokens"`
	ThoughtTokens     int `json:"thoughtTokens,omitempty"`
	CachedReadTokens  int `json:"cachedReadTokens,omitempty"`
	CachedWriteTokens int `json:"cachedWriteTokens,omitempty"`
}

// --- Session updates (agent → client notifications) ---

// Session update discriminator values carried in the "sessionUpdate"
// field of the inner update object.
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateUserMessageChunk  = "user_message_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
	UpdateCurrentMode       = "current_mode_update"
	UpdateConfigOption      = "config_option_update"
	UpdateUsage             = "usage_update"
	UpdateAvailableCommands = "available_commands_update"
)

// SessionNotification is the outer envelope for session/update.
// The inner update is raw; use Update.Decode helpers or unmarshal into
// the concrete update type selected by UpdateKind.
type SessionNotification struct {
	SessionID string          `json:"sessionId"`
	Update    json.RawMessage `json:"update"`
}

// UpdateKind extracts the "sessionUpdate" discriminator from the inner
// update object. Returns "" if the envelope is empty or malformed.
func (n *SessionNotification) UpdateKind() string {
	var header struct {
		SessionUpdate string `json:"sessionUpdate"`
	}
	if err := json.Unmarshal(n.Update, &header); err != nil {
		return ""
	}
	return header.SessionUpdate
}

// ContentChunk is the payload of the *_chunk update kinds.
type ContentChunk struct {
	SessionUpdate string       `json:"sessionUpdate"`
	Content       ContentBlock `json:"content"`
}

// UpdateEnvelope builds the raw inner update for an update value.
func UpdateEnvelope(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// AgentMessageChunk builds a session/update payload streaming a piece
// of the agent's reply.
func AgentMessageChunk(sessionID, text string) *SessionNotification {
	return chunkNotification(sessionID, UpdateAgentMessageChunk, text)
}

// AgentThoughtChunk builds a session/update payload streaming a piece
// of the agent's reasoning.
func AgentThoughtChunk(sessionID, text string) *SessionNotification {
	return chunkNotification(sessionID, UpdateAgentThoughtChunk, text)
}

func chunkNotification(sessionID, kind, text string) *SessionNotification {
	raw, _ := json.Marshal(ContentChunk{SessionUpdate: kind, Content: TextBlock(text)})
	return &SessionNotification{SessionID: sessionID, Update: raw}
}

// ToolCallUpdate describes a tool call in update and permission contexts.
type ToolCallUpdate struct {
	SessionUpdate string          `json:"sessionUpdate,omitempty"`
	ToolCallID    string          `json:"toolCallId"`
	Title         string          `json:"title,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	Status        string          `json:"status,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
	RawInput      json.RawMessage `json:"rawInput,omitempty"`
	RawOutput     json.RawMessage `json:"rawOutput,omitempty"`
}

// --- Permission ---

// RequestPermissionRequest asks the client to approve a tool call.
type RequestPermissionRequest struct {
	SessionID string             `json:"sessionId"`
	ToolCall  ToolCallUpdate     `json:"toolCall"`
	Options   []PermissionOption `json:"options"`
}

// PermissionOption is a single option in a permission request.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

// Permission option kinds.
const (
	PermissionAllowOnce    = "allow_once"
	PermissionAllowAlways  = "allow_always"
	PermissionRejectOnce   = "reject_once"
	PermissionRejectAlways = "reject_always"
)

// RequestPermissionResponse carries the selected outcome.
type RequestPermissionResponse struct {
	Outcome PermissionOutcome `json:"outcome"`
}

// PermissionOutcome is the user's decision.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"` // "selected" or "cancelled"
	OptionID string `json:"optionId,omitempty"`
}

// --- File system (agent → client) ---

// ReadTextFileRequest asks the client for file contents.
type ReadTextFileRequest struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Line      int    `json:"line,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ReadTextFileResponse returns the file contents.
type ReadTextFileResponse struct {
	Content string `json:"content"`
}

// WriteTextFileRequest asks the client to write file contents.
type WriteTextFileRequest struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// WriteTextFileResponse acknowledges the write.
type WriteTextFileResponse struct{}

// --- Terminal (agent → client) ---

// CreateTerminalRequest starts a command in a client-managed terminal.
type CreateTerminalRequest struct {
	SessionID       string   `json:"sessionId"`
	Command         string   `json:"command"`
	Args            []string `json:"args,omitempty"`
	CWD             string   `json:"cwd,omitempty"`
	OutputByteLimit int      `json:"outputByteLimit,omitempty"`
}

// CreateTerminalResponse identifies the created terminal.
type CreateTerminalResponse struct {
	TerminalID string `json:"terminalId"`
}

// TerminalOutputRequest fetches the accumulated output of a terminal.
type TerminalOutputRequest struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

// TerminalOutputResponse carries the output captured so far.
type TerminalOutputResponse struct {
	Output     string        `json:"output"`
	Truncated  bool          `json:"truncated,omitempty"`
	ExitStatus *TerminalExit `json:"exitStatus,omitempty"`
}

// TerminalExit describes how a terminal command ended.
type TerminalExit struct {
	ExitCode *int   `json:"exitCode,omitempty"`
	Signal   string `json:"signal,omitempty"`
}

// WaitForTerminalExitRequest blocks until the command exits.
type WaitForTerminalExitRequest struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

// WaitForTerminalExitResponse reports the exit status.
type WaitForTerminalExitResponse struct {
	ExitCode *int   `json:"exitCode,omitempty"`
	Signal   string `json:"signal,omitempty"`
}

// KillTerminalRequest kills the command without releasing the terminal.
type KillTerminalRequest struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

// KillTerminalResponse acknowledges the kill.
type KillTerminalResponse struct{}

// ReleaseTerminalRequest disposes of a terminal and its buffers.
type ReleaseTerminalRequest struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

// ReleaseTerminalResponse acknowledges the release.
type ReleaseTerminalResponse struct{}
