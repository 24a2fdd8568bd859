package toolcall

import (
	"encoding/json"
	"testing"

	"github.com/getpaseo/paseo/pkg/paseo"
)

func TestMapCollapsesBuiltinAliases(t *testing.T) {
	for _, name := range []string{"Bash", "bash", "exec", "shell"} {
		call := Map(RawEvent{Provider: "claude", ToolName: name, Input: json.RawMessage(`{"command":"ls"}`)})
		if call.Tool != "shell" {
			t.Errorf("ToolName %q -> Tool = %q, want shell", name, call.Tool)
		}
		if call.Server != "" {
			t.Errorf("builtin %q should never carry a server prefix, got %q", name, call.Server)
		}
	}
}

func TestMapCallIDFallsBackToDeterministicHash(t *testing.T) {
	input := json.RawMessage(`{"command":"ls -la"}`)
	a := Map(RawEvent{Provider: "codex", ToolName: "shell", Input: input})
	b := Map(RawEvent{Provider: "codex", ToolName: "shell", Input: input})
	if a.CallID == "" {
		t.Fatal("expected non-empty deterministic callId")
	}
	if a.CallID != b.CallID {
		t.Fatalf("hash fallback not deterministic: %q != %q", a.CallID, b.CallID)
	}
}

func TestMapCallIDPrefersNativeID(t *testing.T) {
	call := Map(RawEvent{Provider: "claude", ToolName: "shell", NativeID: "toolu_123", Input: json.RawMessage(`{}`)})
	if call.CallID != "toolu_123" {
		t.Fatalf("CallID = %q, want toolu_123", call.CallID)
	}
}

func TestMapStripsCwdFromFilePath(t *testing.T) {
	input := json.RawMessage(`{"filePath":"/home/user/project/src/main.go"}`)
	call := Map(RawEvent{Provider: "codex", ToolName: "read_file", Input: input, Cwd: "/home/user/project"})
	if call.FilePath != "src/main.go" {
		t.Fatalf("FilePath = %q, want src/main.go", call.FilePath)
	}
	if call.Detail.Read.FilePath != "src/main.go" {
		t.Fatalf("Detail.Read.FilePath = %q, want src/main.go", call.Detail.Read.FilePath)
	}
}

func TestMapUnknownToolFallsThroughToGeneric(t *testing.T) {
	call := Map(RawEvent{Provider: "opencode", ToolName: "custom_tool", Input: json.RawMessage(`{"foo":"bar"}`)})
	if call.Detail.Kind != paseo.DetailGeneric {
		t.Fatalf("Detail.Kind = %q, want generic", call.Detail.Kind)
	}
}

func TestMapCodexThreadItemCommandExecution(t *testing.T) {
	raw := json.RawMessage(`{"type":"commandExecution","id":"ce1","status":"completed","command":"go test ./...","cwd":"/repo","output":"ok","exitCode":0}`)
	ev, ok := MapCodexThreadItem(raw, "/repo")
	if !ok {
		t.Fatal("MapCodexThreadItem returned ok=false")
	}
	if ev.ToolName != "shell" || ev.NativeID != "ce1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	call := Map(ev)
	if call.Detail.Kind != paseo.DetailShell {
		t.Fatalf("Detail.Kind = %q, want shell", call.Detail.Kind)
	}
}

func TestMapCodexThreadItemFileChange(t *testing.T) {
	raw := json.RawMessage(`{"type":"fileChange","id":"fc1","status":"completed","path":"/repo/a.go","diff":"+added"}`)
	ev, ok := MapCodexThreadItem(raw, "/repo")
	if !ok {
		t.Fatal("MapCodexThreadItem returned ok=false")
	}
	call := Map(ev)
	if call.Tool != "edit" {
		t.Fatalf("Tool = %q, want edit", call.Tool)
	}
}

func TestMapClaudeMCPUseAndResultShareNativeID(t *testing.T) {
	use := json.RawMessage(`{"type":"mcp_tool_use","tool_use_id":"tu1","server":"github","name":"search_issues","input":{"query":"bug"}}`)
	result := json.RawMessage(`{"type":"mcp_tool_result","tool_use_id":"tu1","content":{"count":3}}`)

	useEv, ok := MapClaudeMCPUse(use, "")
	if !ok {
		t.Fatal("MapClaudeMCPUse returned ok=false")
	}
	resultEv, ok := MapClaudeMCPResult(result)
	if !ok {
		t.Fatal("MapClaudeMCPResult returned ok=false")
	}
	if useEv.NativeID != resultEv.NativeID {
		t.Fatalf("use/result NativeID mismatch: %q != %q", useEv.NativeID, resultEv.NativeID)
	}

	useCall := Map(useEv)
	if useCall.Server != "github" {
		t.Fatalf("Server = %q, want github (MCP tool, not builtin)", useCall.Server)
	}
}
