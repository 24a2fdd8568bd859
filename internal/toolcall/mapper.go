package toolcall

import (
	"encoding/json"

	"github.com/getpaseo/paseo/pkg/paseo"
)

func jsonString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// RawEvent is a single, still provider-native tool-call occurrence handed
// to the mapper by a provider adapter's event stream.
type RawEvent struct {
	Provider string
	Server   string // MCP server name, empty for built-in tools
	ToolName string
	Status   string
	Input    json.RawMessage
	Output   json.RawMessage
	Error    string
	Cwd      string
	Raw      json.RawMessage // the full, untransformed provider payload

	// NativeID, when set, is a provider-supplied id (e.g. Codex's rollout
	// item id or Claude's tool_use_id) checked before any key inside Input
	// and before the deterministic hash fallback.
	NativeID string
}

// Map transforms one RawEvent into the canonical AgentToolCall shape
// (spec §4.2's "hard part"). It never returns nil; unknown tools fall
// through to the generic detail.
func Map(ev RawEvent) *paseo.AgentToolCall {
	var inputMap, outputMap map[string]any
	_ = json.Unmarshal(ev.Input, &inputMap)
	_ = json.Unmarshal(ev.Output, &outputMap)

	callID := ev.NativeID
	if callID == "" {
		callID = extractCallID(ev.Provider, ev.ToolName, inputMap, ev.Input)
	}
	name := CanonicalName(ev.ToolName)
	server := ev.Server
	if IsBuiltin(name) {
		server = ""
	}

	detail := buildDetail(name, inputMap, outputMap, ev.Cwd)

	call := &paseo.AgentToolCall{
		Provider:    ev.Provider,
		Server:      server,
		Tool:        name,
		Status:      paseo.ToolCallStatus(ev.Status),
		Raw:         ev.Raw,
		CallID:      callID,
		DisplayName: ev.ToolName,
		Kind:        server,
		Result:      ev.Output,
		Error:       ev.Error,
		FilePath:    stripCwd(fieldString(inputMap, "filePath", "file_path", "path"), ev.Cwd),
		Detail:      detail,
	}
	return call
}

func buildDetail(canonicalName string, input, output map[string]any, cwd string) paseo.ToolCallDetail {
	switch canonicalName {
	case "shell":
		return paseo.ToolCallDetail{Kind: paseo.DetailShell, Shell: buildShellDetail(input, output, cwd)}
	case "read_file":
		return paseo.ToolCallDetail{Kind: paseo.DetailRead, Read: buildReadDetail(input, output, cwd)}
	case "edit":
		return paseo.ToolCallDetail{Kind: paseo.DetailEdit, Edit: buildEditDetail(input, cwd)}
	case "search", "web_search":
		return paseo.ToolCallDetail{Kind: paseo.DetailSearch, Search: buildSearchDetail(input)}
	case "thinking":
		return paseo.ToolCallDetail{Kind: paseo.DetailThinking, Thinking: buildThinkingDetail(fieldString(input, "content", "text"))}
	default:
		return paseo.ToolCallDetail{Kind: paseo.DetailGeneric, Generic: buildGenericDetail(input, output)}
	}
}
