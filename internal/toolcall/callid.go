package toolcall

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

// callIDKeys is the ordered set of JSON keys the mapper checks for a
// provider-supplied call id (spec §4.2).
var callIDKeys = []string{
	"toolCallId", "tool_call_id", "callId", "call_id", "tool_use_id", "toolUseId",
}

// extractCallID pulls a call id out of a raw provider payload, checking
// every known key name before falling back to a deterministic hash of
// provider, tool name, and normalized input.
func extractCallID(provider, toolName string, raw map[string]any, input json.RawMessage) string {
	for _, key := range callIDKeys {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return hashCallID(provider, toolName, input)
}

func hashCallID(provider, toolName string, input json.RawMessage) string {
	h := sha1.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write(normalizeInput(input))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// normalizeInput re-marshals input through a map so that key order never
// affects the derived hash.
func normalizeInput(input json.RawMessage) []byte {
	if len(input) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return input
	}
	out, err := json.Marshal(v)
	if err != nil {
		return input
	}
	return out
}
