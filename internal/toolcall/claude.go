package toolcall

import "encoding/json"

// claudeMCPUse is the `mcp_tool_use` content block Claude Code emits when
// invoking an MCP-backed tool.
type claudeMCPUse struct {
	Type      string          `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	Server    string          `json:"server"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// claudeMCPResult is the matching `mcp_tool_result` content block, keyed
// back to the same tool_use_id.
type claudeMCPResult struct {
	Type      string          `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// MapClaudeMCPUse converts a Claude `mcp_tool_use` block into a RawEvent.
// The matching result, when it arrives later, is merged onto the same
// callId by the reducer's upsert-by-callId rule (spec §4.2 / §4.3).
func MapClaudeMCPUse(raw json.RawMessage, cwd string) (RawEvent, bool) {
	var block claudeMCPUse
	if err := json.Unmarshal(raw, &block); err != nil || block.Type != "mcp_tool_use" {
		return RawEvent{}, false
	}
	return RawEvent{
		Provider: "claude",
		Server:   block.Server,
		ToolName: block.Name,
		Status:   "executing",
		Input:    block.Input,
		Cwd:      cwd,
		Raw:      raw,
		NativeID: block.ToolUseID,
	}, true
}

// MapClaudeMCPResult converts a Claude `mcp_tool_result` block into a
// RawEvent carrying only the output half of the pair; Map's caller is
// expected to look up the existing timeline item by NativeID and merge
// rather than replace (handled by the timeline reducer, not here).
func MapClaudeMCPResult(raw json.RawMessage) (RawEvent, bool) {
	var block claudeMCPResult
	if err := json.Unmarshal(raw, &block); err != nil || block.Type != "mcp_tool_result" {
		return RawEvent{}, false
	}
	status := "completed"
	if block.IsError {
		status = "failed"
	}
	return RawEvent{
		Provider: "claude",
		Status:   status,
		Output:   block.Content,
		Raw:      raw,
		NativeID: block.ToolUseID,
	}, true
}
