package paseo

import (
	"encoding/json"
	"time"
)

// StreamItemKind discriminates the canonical timeline element sum type
// (spec §3 Stream Item).
type StreamItemKind string

const (
	KindUserMessage      StreamItemKind = "user_message"
	KindAssistantMessage StreamItemKind = "assistant_message"
	KindThought          StreamItemKind = "thought"
	KindToolCall         StreamItemKind = "tool_call"
	KindActivityLog      StreamItemKind = "activity_log"
)

// StreamItem is one element of an agent's canonical, resumable timeline.
// Exactly one of the payload pointers is non-nil for a given Kind, following
// the discriminated-union convention the gateway uses for AgentEvent.
type StreamItem struct {
	Kind      StreamItemKind `json:"kind"`
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`

	UserMessage      *UserMessageItem `json:"userMessage,omitempty"`
	AssistantMessage *TextItem        `json:"assistantMessage,omitempty"`
	Thought          *TextItem        `json:"thought,omitempty"`
	ToolCall         *ToolCallItem    `json:"toolCall,omitempty"`
	ActivityLog      *ActivityLogItem `json:"activityLog,omitempty"`
}

// UserMessageItem is a client-authored chat message.
type UserMessageItem struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

// TextItem backs both assistant_message and thought; adjacent chunks of the
// same kind concatenate (spec §3, rule in §4.3).
type TextItem struct {
	Text string `json:"text"`
	// Synthetic marks a model-emitted synthetic assistant event (the
	// "<synthetic>" marker, spec §9 open question). Never set by the
	// reducer itself; subscribers decide whether to filter it.
	Synthetic bool `json:"synthetic,omitempty"`
}

// ToolCallSource discriminates the tool_call payload tagged union.
type ToolCallSource string

const (
	ToolCallSourceAgent        ToolCallSource = "agent"
	ToolCallSourceOrchestrator ToolCallSource = "orchestrator"
)

// ToolCallStatus is the normalized status of a tool invocation (spec §3).
type ToolCallStatus string

const (
	ToolCallExecuting ToolCallStatus = "executing"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCallItem is upserted by CallID; the Raw payload preservation invariant
// (I3/P3) lives on AgentToolCall.Raw.
type ToolCallItem struct {
	CallID       string                `json:"callId"`
	Source       ToolCallSource        `json:"source"`
	Agent        *AgentToolCall        `json:"agent,omitempty"`
	Orchestrator *OrchestratorToolCall `json:"orchestrator,omitempty"`
}

// AgentToolCall is the canonical, mapper-produced shape of a provider tool
// invocation (spec §4.2's ToolCallTimelineItem, folded into the payload).
type AgentToolCall struct {
	Provider    string          `json:"provider"`
	Server      string          `json:"server,omitempty"`
	Tool        string          `json:"tool"`
	Status      ToolCallStatus  `json:"status"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	CallID      string          `json:"callId,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
	Kind        string          `json:"kind,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	FilePath    string          `json:"filePath,omitempty"`
	Detail      ToolCallDetail  `json:"detail"`
}

// OrchestratorToolCall is a daemon-side (non-provider) tool invocation, e.g.
// one the Hub dispatches on behalf of a client command.
type OrchestratorToolCall struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Arguments  json.RawMessage `json:"arguments"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Status     ToolCallStatus  `json:"status"`
}

// ToolCallDetailKind discriminates the canonical detail tagged union.
type ToolCallDetailKind string

const (
	DetailShell    ToolCallDetailKind = "shell"
	DetailRead     ToolCallDetailKind = "read"
	DetailEdit     ToolCallDetailKind = "edit"
	DetailSearch   ToolCallDetailKind = "search"
	DetailThinking ToolCallDetailKind = "thinking"
	DetailGeneric  ToolCallDetailKind = "generic"
)

// ToolCallDetail is the tagged union described in spec §4.2.
type ToolCallDetail struct {
	Kind     ToolCallDetailKind `json:"kind"`
	Shell    *ShellDetail       `json:"shell,omitempty"`
	Read     *ReadDetail        `json:"read,omitempty"`
	Edit     *EditDetail        `json:"edit,omitempty"`
	Search   *SearchDetail      `json:"search,omitempty"`
	Thinking *ThinkingDetail    `json:"thinking,omitempty"`
	Generic  *GenericDetail     `json:"generic,omitempty"`
}

type ShellDetail struct {
	Command  string `json:"command"`
	Cwd      string `json:"cwd,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

type ReadDetail struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content,omitempty"`
	Offset   *int   `json:"offset,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
}

type EditDetail struct {
	FilePath    string `json:"filePath"`
	OldString   string `json:"oldString,omitempty"`
	NewString   string `json:"newString,omitempty"`
	UnifiedDiff string `json:"unifiedDiff,omitempty"`
}

type SearchDetail struct {
	Query string `json:"query"`
}

type ThinkingDetail struct {
	Content string `json:"content"`
}

// KV is a generic key/value pair used by GenericDetail's input/output lists.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GenericDetail is the fallback shape for tools the mapper doesn't recognize.
type GenericDetail struct {
	Input  []KV `json:"input,omitempty"`
	Output []KV `json:"output,omitempty"`
}

// ActivityType categorizes an ActivityLogItem.
type ActivityType string

// ActivityLogItem renders todo lists, system notices, and errors into the
// timeline (spec §4.3 rules for `todo` and `error` events).
type ActivityLogItem struct {
	ActivityType ActivityType   `json:"activityType"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

const (
	ActivityTypeSystem  ActivityType = "system"
	ActivityTypeInfo    ActivityType = "info"
	ActivityTypeSuccess ActivityType = "success"
	ActivityTypeError   ActivityType = "error"
)
