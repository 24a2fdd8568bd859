package agent

import (
	"encoding/json"
	"time"

	"github.com/getpaseo/paseo/internal/provider"
	"github.com/getpaseo/paseo/internal/timeline"
	"github.com/getpaseo/paseo/internal/toolcall"
	"github.com/getpaseo/paseo/pkg/paseo"
)

// translateTimelineEvent turns one provider.StreamEvent (the still
// provider-native `{provider, type, item}` record, spec §4.2) into a
// timeline.Event the reducer can fold. ev.Item carries whatever shape the
// provider's CLI emitted on a line of its stream-json output; the "type"
// discriminator is the common field every supported provider's timeline
// events carry.
func translateTimelineEvent(ev provider.StreamEvent, cwd string) (timeline.Event, time.Time, bool) {
	ts := time.Now()
	itemType, _ := ev.Item["type"].(string)

	switch itemType {
	case "user_message":
		return timeline.Event{
			Kind:      timeline.EventUserMessage,
			MessageID: stringField(ev.Item, "id"),
			Text:      stringField(ev.Item, "text"),
			Images:    stringSliceField(ev.Item, "images"),
		}, ts, true

	case "assistant_message", "text":
		return timeline.Event{Kind: timeline.EventAssistant, Chunk: stringField(ev.Item, "text")}, ts, true

	case "reasoning", "thought", "thinking":
		return timeline.Event{Kind: timeline.EventThought, Chunk: stringField(ev.Item, "text")}, ts, true

	case "todo":
		raw, _ := json.Marshal(ev.Item["todos"])
		return timeline.Event{Kind: timeline.EventTodo, TodoJSON: raw}, ts, true

	case "error":
		return timeline.Event{Kind: timeline.EventError, ErrorMessage: stringField(ev.Item, "message")}, ts, true
	}

	if call, ok := translateToolCall(ev, cwd); ok {
		return timeline.Event{Kind: timeline.EventToolCall, ToolCall: call}, ts, true
	}

	return timeline.Event{}, ts, false
}

// isTurnComplete reports whether ev signals the provider has finished its
// current turn and gone quiet (a pseudo-event, not a timeline item: it never
// reaches the reducer, only the Manager's running->idle transition).
func isTurnComplete(ev provider.StreamEvent) bool {
	itemType, _ := ev.Item["type"].(string)
	switch itemType {
	case "turn_complete", "turn.completed", "idle":
		return true
	}
	return false
}

// translateToolCall recognizes the provider-native tool-call shapes (Codex's
// four rollout item kinds, Claude's mcp_tool_use/mcp_tool_result pair, and a
// generic {tool,input,output,status} shape for OpenCode) and runs them
// through the Tool-Call Mapper.
func translateToolCall(ev provider.StreamEvent, cwd string) (*paseo.AgentToolCall, bool) {
	raw, err := json.Marshal(ev.Item)
	if err != nil {
		return nil, false
	}

	switch paseo.Provider(ev.Provider) {
	case paseo.ProviderCodex:
		rawEvent, ok := toolcall.MapCodexThreadItem(raw, cwd)
		if !ok {
			return nil, false
		}
		return toolcall.Map(rawEvent), true

	case paseo.ProviderClaude:
		itemType, _ := ev.Item["type"].(string)
		switch itemType {
		case "mcp_tool_use":
			rawEvent, ok := toolcall.MapClaudeMCPUse(raw, cwd)
			if !ok {
				return nil, false
			}
			return toolcall.Map(rawEvent), true
		case "mcp_tool_result":
			rawEvent, ok := toolcall.MapClaudeMCPResult(raw)
			if !ok {
				return nil, false
			}
			return toolcall.Map(rawEvent), true
		}
		return nil, false
	}

	// OpenCode and any unrecognized provider: accept a generic tool-call
	// shape carrying {tool, server?, input, output, status, error, callId}.
	toolName := stringField(ev.Item, "tool", "toolName", "name")
	if toolName == "" {
		return nil, false
	}
	input, _ := json.Marshal(ev.Item["input"])
	output, _ := json.Marshal(ev.Item["output"])
	rawEvent := toolcall.RawEvent{
		Provider: ev.Provider,
		Server:   stringField(ev.Item, "server"),
		ToolName: toolName,
		Status:   stringField(ev.Item, "status"),
		Input:    input,
		Output:   output,
		Error:    stringField(ev.Item, "error"),
		Cwd:      cwd,
		Raw:      raw,
		NativeID: stringField(ev.Item, "callId", "call_id", "toolCallId", "tool_call_id"),
	}
	return toolcall.Map(rawEvent), true
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
