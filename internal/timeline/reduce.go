package timeline

import (
	"strings"
	"time"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// State is the accumulated, ordered timeline for a single agent. Index holds
// the position of each item keyed by id/callId so Reduce can upsert in O(1)
// without a linear scan, while Items preserves presentation order.
type State struct {
	Items []paseo.StreamItem
	index map[string]int
}

// NewState returns an empty timeline.
func NewState() *State {
	return &State{index: make(map[string]int)}
}

// Clone returns a deep-enough copy safe to hand to a reader goroutine while
// the owner continues reducing.
func (s *State) Clone() *State {
	clone := &State{
		Items: make([]paseo.StreamItem, len(s.Items)),
		index: make(map[string]int, len(s.index)),
	}
	copy(clone.Items, s.Items)
	for k, v := range s.index {
		clone.index[k] = v
	}
	return clone
}

func (s *State) get(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

func (s *State) upsert(id string, item paseo.StreamItem) {
	if i, ok := s.get(id); ok {
		s.Items[i] = item
		return
	}
	s.index[id] = len(s.Items)
	s.Items = append(s.Items, item)
}

func (s *State) last() *paseo.StreamItem {
	if len(s.Items) == 0 {
		return nil
	}
	return &s.Items[len(s.Items)-1]
}

// Reduce folds one Event into state at timestamp ts, mutating state in
// place, and returns it. Callers that hand State out to subscribers
// should Clone before calling Reduce again, or serialize access
// through a single owner goroutine (the Agent Manager's mailbox does the
// latter).
func Reduce(state *State, ev Event, ts time.Time) *State {
	switch ev.Kind {
	case EventUserMessage:
		reduceUserMessage(state, ev, ts)
	case EventAssistant:
		reduceText(state, paseo.KindAssistantMessage, ev.Chunk, ts)
	case EventThought:
		reduceText(state, paseo.KindThought, ev.Chunk, ts)
	case EventToolCall:
		reduceToolCall(state, ev, ts)
	case EventTodo:
		reduceTodo(state, ev, ts)
	case EventError:
		reduceError(state, ev, ts)
	case EventActivity:
		reduceActivity(state, ev, ts)
	}
	return state
}

// ReduceBatch applies Reduce sequentially over an ordered event log,
// implementing hydration (spec §4.3: "Hydration is reduce applied
// sequentially to an ordered batch").
func ReduceBatch(events []Event, timestamps []time.Time) *State {
	state := NewState()
	for i, ev := range events {
		Reduce(state, ev, timestamps[i])
	}
	return state
}

func reduceUserMessage(state *State, ev Event, ts time.Time) {
	if isWhitespace(ev.Text) && len(ev.Images) == 0 {
		return
	}
	id := ev.MessageID
	if id == "" {
		id = hashID("user_message", ev.Text, ts.String())
	}
	state.upsert(id, paseo.StreamItem{
		Kind:      paseo.KindUserMessage,
		ID:        id,
		Timestamp: ts,
		UserMessage: &paseo.UserMessageItem{
			Text:   ev.Text,
			Images: ev.Images,
		},
	})
}

func reduceText(state *State, kind paseo.StreamItemKind, chunk string, ts time.Time) {
	chunk = strings.ReplaceAll(chunk, "\r", "")

	if last := state.last(); last != nil && last.Kind == kind {
		appendTo(last, chunk)
		return
	}
	if isWhitespace(chunk) {
		return
	}

	id := hashID(string(kind), chunk, ts.String())
	item := paseo.StreamItem{Kind: kind, ID: id, Timestamp: ts}
	text := &paseo.TextItem{Text: chunk}
	switch kind {
	case paseo.KindAssistantMessage:
		item.AssistantMessage = text
	case paseo.KindThought:
		item.Thought = text
	}
	state.upsert(id, item)
}

func appendTo(item *paseo.StreamItem, chunk string) {
	switch item.Kind {
	case paseo.KindAssistantMessage:
		if item.AssistantMessage != nil {
			item.AssistantMessage.Text += chunk
		}
	case paseo.KindThought:
		if item.Thought != nil {
			item.Thought.Text += chunk
		}
	}
}

func reduceToolCall(state *State, ev Event, ts time.Time) {
	call := ev.ToolCall
	if call == nil || IsPermissionEvent(call) {
		return
	}
	call.Status = NormalizeStatus(string(call.Status))

	id := call.CallID
	if id == "" {
		id = hashID("tool_call", call.Provider, call.Tool, ts.String())
		call.CallID = id
	}

	if i, ok := state.get(id); ok {
		existing := state.Items[i].ToolCall
		if existing != nil && existing.Agent != nil {
			merged := mergeAgentToolCall(existing.Agent, call)
			state.Items[i].ToolCall.Agent = merged
			state.Items[i].Timestamp = ts
			return
		}
	}

	state.upsert(id, paseo.StreamItem{
		Kind:      paseo.KindToolCall,
		ID:        id,
		Timestamp: ts,
		ToolCall: &paseo.ToolCallItem{
			CallID: id,
			Source: paseo.ToolCallSourceAgent,
			Agent:  call,
		},
	})
}

// mergeAgentToolCall merges incoming fields onto the existing record,
// preserving the first non-empty raw payload (the "raw preservation"
// invariant, spec §3/I3).
func mergeAgentToolCall(existing, incoming *paseo.AgentToolCall) *paseo.AgentToolCall {
	merged := *existing

	if len(existing.Raw) == 0 && len(incoming.Raw) > 0 {
		merged.Raw = incoming.Raw
	}
	if incoming.Status != "" {
		merged.Status = incoming.Status
	}
	if incoming.DisplayName != "" {
		merged.DisplayName = incoming.DisplayName
	}
	if incoming.Kind != "" {
		merged.Kind = incoming.Kind
	}
	if len(incoming.Result) > 0 {
		merged.Result = incoming.Result
	}
	if incoming.Error != "" {
		merged.Error = incoming.Error
	}
	if incoming.FilePath != "" {
		merged.FilePath = incoming.FilePath
	}
	if incoming.Detail.Kind != "" {
		merged.Detail = incoming.Detail
	}
	return &merged
}

func reduceTodo(state *State, ev Event, ts time.Time) {
	id := hashID("todo", string(ev.TodoJSON))
	state.upsert(id, paseo.StreamItem{
		Kind:      paseo.KindActivityLog,
		ID:        id,
		Timestamp: ts,
		ActivityLog: &paseo.ActivityLogItem{
			ActivityType: paseo.ActivityTypeSystem,
			Message:      "todo list updated",
			Metadata:     map[string]any{"todo": string(ev.TodoJSON)},
		},
	})
}

func reduceActivity(state *State, ev Event, ts time.Time) {
	id := hashID("activity", string(ev.ActivityType), ev.Message, ts.String())
	state.upsert(id, paseo.StreamItem{
		Kind:      paseo.KindActivityLog,
		ID:        id,
		Timestamp: ts,
		ActivityLog: &paseo.ActivityLogItem{
			ActivityType: ev.ActivityType,
			Message:      ev.Message,
		},
	})
}

func reduceError(state *State, ev Event, ts time.Time) {
	id := hashID("error", ev.ErrorMessage, ts.String())
	state.upsert(id, paseo.StreamItem{
		Kind:      paseo.KindActivityLog,
		ID:        id,
		Timestamp: ts,
		ActivityLog: &paseo.ActivityLogItem{
			ActivityType: paseo.ActivityTypeError,
			Message:      ev.ErrorMessage,
		},
	})
}
