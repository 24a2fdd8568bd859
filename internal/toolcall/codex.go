package toolcall

import "encoding/json"

// CodexThreadItemKind enumerates the four Codex rollout shapes the mapper
// understands (spec §4.2 "Codex thread items").
type CodexThreadItemKind string

const (
	CodexCommandExecution CodexThreadItemKind = "commandExecution"
	CodexFileChange       CodexThreadItemKind = "fileChange"
	CodexMCPToolCall      CodexThreadItemKind = "mcpToolCall"
	CodexWebSearch        CodexThreadItemKind = "webSearch"
)

// codexThreadItem is the envelope Codex's rollout stream emits around one
// of the four item kinds.
type codexThreadItem struct {
	Type    CodexThreadItemKind `json:"type"`
	ID      string              `json:"id"`
	Status  string              `json:"status"`
	Error   string              `json:"error,omitempty"`
	Command string              `json:"command,omitempty"`
	Cwd     string              `json:"cwd,omitempty"`
	Output  string              `json:"output,omitempty"`
	ExitCode *int               `json:"exitCode,omitempty"`

	Path      string `json:"path,omitempty"`
	Diff      string `json:"diff,omitempty"`

	Server    string          `json:"server,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`

	Query string `json:"query,omitempty"`
}

// MapCodexThreadItem converts one raw Codex rollout item into a RawEvent
// ready for Map, handling all four documented shapes plus plain tool calls.
func MapCodexThreadItem(raw json.RawMessage, cwd string) (RawEvent, bool) {
	var item codexThreadItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return RawEvent{}, false
	}

	ev := RawEvent{Provider: "codex", Status: item.Status, Error: item.Error, Cwd: cwd, Raw: raw, NativeID: item.ID}

	switch item.Type {
	case CodexCommandExecution:
		ev.ToolName = "shell"
		ev.Input, _ = json.Marshal(map[string]any{"command": item.Command, "cwd": item.Cwd})
		ev.Output, _ = json.Marshal(map[string]any{"output": item.Output, "exitCode": item.ExitCode})
	case CodexFileChange:
		ev.ToolName = "edit"
		ev.Input, _ = json.Marshal(map[string]any{"filePath": item.Path, "diff": item.Diff})
	case CodexMCPToolCall:
		ev.ToolName = item.Tool
		ev.Server = item.Server
		ev.Input = item.Arguments
		ev.Output = item.Result
	case CodexWebSearch:
		ev.ToolName = "web_search"
		ev.Input, _ = json.Marshal(map[string]any{"query": item.Query})
	default:
		return RawEvent{}, false
	}

	return ev, true
}
