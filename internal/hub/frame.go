package hub

import (
	"encoding/json"
	"time"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// Inbound frame types (spec §4.4 Message surface, inbound).
const (
	TypeHello                     = "hello"
	TypeFetchAgentsRequest        = "fetch_agents_request"
	TypeCreateAgentRequest        = "create_agent_request"
	TypeSendMessageRequest        = "send_message_request"
	TypeCancelAgentRequest        = "cancel_agent_request"
	TypeResumeAgentRequest        = "resume_agent_request"
	TypeListPersistedAgentsRequest = "list_persisted_agents_request"
	TypeHeartbeat                 = "heartbeat"
	TypeGitDiffRequest             = "git_diff_request"
	TypeShutdownServerRequest      = "shutdown_server_request"
	TypePing                       = "ping"
)

// Outbound frame types (spec §4.4 Message surface, outbound).
const (
	TypeWelcome                     = "welcome"
	TypeStatus                      = "status"
	TypeAgentUpsert                 = "agent_upsert"
	TypeAgentRemoved                = "agent_removed"
	TypeAgentStream                 = "agent_stream"
	TypeListPersistedAgentsResponse = "list_persisted_agents_response"
	TypeGitDiffResponse             = "git_diff_response"
	TypePong                        = "pong"
	TypeAttentionRequired            = "attention_required"
)

// Envelope is the wire frame every message crosses the connection in
// (spec §6): `{type, payload}`, with requestId echoed on request/response
// pairs and omitted on server-pushed stream events.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// StatusError is the error shape carried in a `status` response (spec §7
// ClientRequest/NotFound taxonomy).
type StatusError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusPayload answers a request-style inbound frame.
type StatusPayload struct {
	Status string       `json:"status"`
	Error  *StatusError `json:"error,omitempty"`
}

func okStatus() StatusPayload  { return StatusPayload{Status: "ok"} }
func errStatus(code, msg string) StatusPayload {
	return StatusPayload{Status: "error", Error: &StatusError{Code: code, Message: msg}}
}

// WelcomePayload is the first server->client frame, carrying capability and
// version info (spec §6).
type WelcomePayload struct {
	ProtocolVersion int      `json:"protocolVersion"`
	ServerVersion   string   `json:"serverVersion"`
	Capabilities    []string `json:"capabilities"`
}

// HeartbeatPayload is the per-connection client status frame (spec §3
// Client Session, §4.4 Heartbeat).
type HeartbeatPayload struct {
	DeviceType     DeviceType `json:"deviceType"`
	FocusedAgentID string     `json:"focusedAgentId,omitempty"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	AppVisible     bool       `json:"appVisible"`
}

// CreateAgentPayload carries createAgent's request fields.
type CreateAgentPayload struct {
	Provider     paseo.Provider `json:"provider"`
	Cwd          string         `json:"cwd"`
	ModeID       string         `json:"modeId,omitempty"`
	Model        string         `json:"model,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
	Title        string         `json:"title,omitempty"`
	WorktreeName string         `json:"worktreeName,omitempty"`
}

// ResumeAgentPayload carries resumeAgent's request fields.
type ResumeAgentPayload struct {
	Handle      *paseo.PersistenceHandle `json:"handle"`
	Overrides   paseo.ResumeOverrides    `json:"overrides,omitempty"`
	PreferredID string                   `json:"preferredId,omitempty"`
}

// SendMessagePayload carries sendMessage's request fields.
type SendMessagePayload struct {
	AgentID         string   `json:"agentId"`
	Text            string   `json:"text"`
	Images          []string `json:"images,omitempty"`
	ClientMessageID string   `json:"clientMessageId,omitempty"`
}

// CancelAgentPayload carries cancelAgent's request fields.
type CancelAgentPayload struct {
	AgentID string `json:"agentId"`
}

// FetchAgentsPayload optionally subscribes the connection to agent_upsert
// and agent_stream pushes as part of fetching the current list.
type FetchAgentsPayload struct {
	Subscribe bool `json:"subscribe,omitempty"`
}

// ListPersistedAgentsPayload carries listPersistedAgents's request fields.
type ListPersistedAgentsPayload struct {
	Provider paseo.Provider `json:"provider,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

// ListPersistedAgentsResponse answers list_persisted_agents_request.
type ListPersistedAgentsResponse struct {
	Agents []paseo.PersistedAgentSummary `json:"agents"`
}

// AgentUpsertPayload is pushed whenever an agent's snapshot changes.
type AgentUpsertPayload struct {
	Agent *paseo.Agent `json:"agent"`
}

// AgentRemovedPayload is pushed when an agent is deleted.
type AgentRemovedPayload struct {
	AgentID string `json:"agentId"`
}

// AgentStreamPayload carries one canonical timeline item (spec §4.4
// `agent_stream {event, agentId}`).
type AgentStreamPayload struct {
	AgentID string             `json:"agentId"`
	Item    *paseo.StreamItem  `json:"item"`
}

// AttentionRequiredPayload is pushed per spec §4.4's attention policy.
type AttentionRequiredPayload struct {
	AgentID string `json:"agentId"`
}

// GitDiffRequestPayload/GitDiffResponsePayload are opaque pass-throughs;
// git/worktree helpers are out of scope (spec §1 Non-goals) so the Hub only
// carries the request through to whatever out-of-process tool handles it.
type GitDiffRequestPayload struct {
	AgentID string `json:"agentId"`
}

type GitDiffResponsePayload struct {
	AgentID string `json:"agentId"`
	Diff    string `json:"diff"`
}

func marshalPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
