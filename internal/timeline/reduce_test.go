package timeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/getpaseo/paseo/pkg/paseo"
)

func TestReduceUserMessageUpsertsByID(t *testing.T) {
	ts := time.Unix(0, 0)
	state := NewState()
	Reduce(state, Event{Kind: EventUserMessage, MessageID: "m1", Text: "hi"}, ts)
	Reduce(state, Event{Kind: EventUserMessage, MessageID: "m1", Text: "hi edited"}, ts)

	if len(state.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(state.Items))
	}
	if state.Items[0].UserMessage.Text != "hi edited" {
		t.Fatalf("text = %q, want %q", state.Items[0].UserMessage.Text, "hi edited")
	}
}

func TestReduceAssistantMessageConcatenatesAdjacentChunks(t *testing.T) {
	ts := time.Unix(0, 0)
	state := NewState()
	Reduce(state, Event{Kind: EventAssistant, Chunk: "Hello, "}, ts)
	Reduce(state, Event{Kind: EventAssistant, Chunk: "world."}, ts)

	if len(state.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(state.Items))
	}
	if got := state.Items[0].AssistantMessage.Text; got != "Hello, world." {
		t.Fatalf("text = %q", got)
	}
}

func TestReduceAssistantMessageStartsNewItemAfterToolCall(t *testing.T) {
	ts := time.Unix(0, 0)
	state := NewState()
	Reduce(state, Event{Kind: EventAssistant, Chunk: "part one"}, ts)
	Reduce(state, Event{Kind: EventToolCall, ToolCall: &paseo.AgentToolCall{
		CallID: "c1", Provider: "claude", Tool: "shell", Status: "running",
	}}, ts)
	Reduce(state, Event{Kind: EventAssistant, Chunk: "part two"}, ts)

	if len(state.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(state.Items))
	}
	if state.Items[2].AssistantMessage.Text != "part two" {
		t.Fatalf("unexpected concatenation across tool call boundary")
	}
}

func TestReduceToolCallUpsertsByCallIDAndPreservesFirstRaw(t *testing.T) {
	ts := time.Unix(0, 0)
	state := NewState()
	firstRaw := json.RawMessage(`{"first":true}`)
	Reduce(state, Event{Kind: EventToolCall, ToolCall: &paseo.AgentToolCall{
		CallID: "c1", Provider: "claude", Tool: "shell", Status: "running", Raw: firstRaw,
	}}, ts)

	secondRaw := json.RawMessage(`{"second":true}`)
	Reduce(state, Event{Kind: EventToolCall, ToolCall: &paseo.AgentToolCall{
		CallID: "c1", Provider: "claude", Tool: "shell", Status: "completed successfully", Raw: secondRaw,
	}}, ts)

	if len(state.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(state.Items))
	}
	call := state.Items[0].ToolCall.Agent
	if string(call.Raw) != string(firstRaw) {
		t.Fatalf("raw = %s, want first raw preserved", call.Raw)
	}
	if call.Status != paseo.ToolCallCompleted {
		t.Fatalf("status = %q, want completed", call.Status)
	}
}

func TestReduceToolCallFiltersPermissionEvents(t *testing.T) {
	ts := time.Unix(0, 0)
	state := NewState()
	Reduce(state, Event{Kind: EventToolCall, ToolCall: &paseo.AgentToolCall{
		CallID: "c1", Provider: "claude", Tool: "permission_ask", Server: "permission",
	}}, ts)

	if len(state.Items) != 0 {
		t.Fatalf("len(Items) = %d, want 0 (permission event should be filtered)", len(state.Items))
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]paseo.ToolCallStatus{
		"failed":              paseo.ToolCallFailed,
		"Error: denied":       paseo.ToolCallFailed,
		"cancelled":           paseo.ToolCallFailed,
		"completed":           paseo.ToolCallCompleted,
		"success":             paseo.ToolCallCompleted,
		"granted":             paseo.ToolCallCompleted,
		"running":             paseo.ToolCallExecuting,
		"":                    paseo.ToolCallExecuting,
	}
	for in, want := range cases {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReduceIsIdempotentUnderDuplicateEvents(t *testing.T) {
	ts := time.Unix(100, 0)
	events := []Event{
		{Kind: EventUserMessage, MessageID: "m1", Text: "hello"},
		{Kind: EventAssistant, Chunk: "hi there"},
		{Kind: EventToolCall, ToolCall: &paseo.AgentToolCall{CallID: "c1", Provider: "codex", Tool: "shell", Status: "running"}},
	}
	timestamps := []time.Time{ts, ts, ts}

	once := ReduceBatch(events, timestamps)

	duped := append(append([]Event{}, events...), events...)
	dupedTimestamps := append(append([]time.Time{}, timestamps...), timestamps...)
	twice := ReduceBatch(duped, dupedTimestamps)

	if len(once.Items) != len(twice.Items) {
		t.Fatalf("len(once) = %d, len(twice) = %d, want equal (idempotence)", len(once.Items), len(twice.Items))
	}
}

func TestReduceTodoProducesActivityLog(t *testing.T) {
	ts := time.Unix(0, 0)
	state := NewState()
	Reduce(state, Event{Kind: EventTodo, TodoJSON: json.RawMessage(`[{"text":"write tests","done":false}]`)}, ts)

	if len(state.Items) != 1 || state.Items[0].Kind != paseo.KindActivityLog {
		t.Fatalf("expected single activity_log item, got %+v", state.Items)
	}
	if state.Items[0].ActivityLog.ActivityType != paseo.ActivityTypeSystem {
		t.Fatalf("activityType = %q, want system", state.Items[0].ActivityLog.ActivityType)
	}
}

func TestReduceErrorProducesActivityLog(t *testing.T) {
	ts := time.Unix(0, 0)
	state := NewState()
	Reduce(state, Event{Kind: EventError, ErrorMessage: "boom"}, ts)

	if len(state.Items) != 1 || state.Items[0].ActivityLog.ActivityType != paseo.ActivityTypeError {
		t.Fatalf("expected error activity_log item, got %+v", state.Items)
	}
}
