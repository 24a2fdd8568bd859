// Package timeline implements the Timeline Reducer: a pure function folding
// provider stream events into an ordered, idempotent slice of canonical
// StreamItems (spec §4.3).
package timeline

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// EventKind discriminates the raw provider events fed to Reduce. These are
// the reducer's input vocabulary, distinct from paseo.StreamItemKind, the
// reducer's output vocabulary.
type EventKind string

const (
	EventUserMessage EventKind = "user_message"
	EventAssistant   EventKind = "assistant_message"
	EventThought     EventKind = "reasoning"
	EventToolCall    EventKind = "tool_call"
	EventTodo        EventKind = "todo"
	EventError       EventKind = "error"
	EventActivity    EventKind = "activity"
)

// Event is one raw, provider-normalized occurrence to fold into the
// timeline. Exactly one of the payload fields is populated per Kind.
type Event struct {
	Kind EventKind

	// user_message
	MessageID string
	Text      string
	Images    []string

	// assistant_message / reasoning
	Chunk string

	// tool_call
	ToolCall *paseo.AgentToolCall

	// todo
	TodoJSON json.RawMessage

	// error
	ErrorMessage string

	// activity: Manager-originated activity_log items that aren't a raw
	// provider error (e.g. "agent interrupted")
	ActivityType paseo.ActivityType
	Message      string
}

var (
	failPattern     = regexp.MustCompile(`(?i)fail|error|deny|reject|cancel`)
	completePattern = regexp.MustCompile(`(?i)complete|success|granted|applied|done|resolved`)
)

// NormalizeStatus maps a provider-reported status string onto the
// canonical three-value status vocabulary (spec §3).
func NormalizeStatus(raw string) paseo.ToolCallStatus {
	switch {
	case failPattern.MatchString(raw):
		return paseo.ToolCallFailed
	case completePattern.MatchString(raw):
		return paseo.ToolCallCompleted
	default:
		return paseo.ToolCallExecuting
	}
}

// IsPermissionEvent reports whether a tool call is permission-related and
// must be filtered from the timeline (invariants I3/P4).
func IsPermissionEvent(call *paseo.AgentToolCall) bool {
	if call == nil {
		return false
	}
	return call.Server == "permission" || call.Kind == "permission"
}

// hashID derives a stable, deterministic id from arbitrary content, used
// whenever an event arrives without a client- or provider-supplied id.
func hashID(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// isWhitespace reports whether s contains no non-whitespace runes.
func isWhitespace(s string) bool {
	return strings.TrimSpace(s) == ""
}
