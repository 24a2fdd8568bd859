package hub

import (
	"testing"
	"time"
)

func TestAttentionWebFocusedOnAgent(t *testing.T) {
	now := time.Now()
	clients := []ClientHeartbeatState{
		{ClientID: "web-1", DeviceType: DeviceWeb, FocusedAgentID: "A", AppVisible: true, LastActivityAt: now, HasHeartbeat: true},
	}
	got := EvaluateAttention(clients, "A", now)
	if got["web-1"] != false {
		t.Fatalf("S4: expected web-1 shouldNotify=false, got %v", got["web-1"])
	}
}

func TestAttentionWebStaleMobileConnected(t *testing.T) {
	now := time.Now()
	clients := []ClientHeartbeatState{
		{ClientID: "web-1", DeviceType: DeviceWeb, FocusedAgentID: "A", AppVisible: true, LastActivityAt: now.Add(-125 * time.Second), HasHeartbeat: true},
		{ClientID: "mobile-1", DeviceType: DeviceMobile, FocusedAgentID: "", AppVisible: false, LastActivityAt: now.Add(-300 * time.Second), HasHeartbeat: true},
	}
	got := EvaluateAttention(clients, "A", now)
	if got["web-1"] != false {
		t.Fatalf("S5: expected web-1 shouldNotify=false, got %v", got["web-1"])
	}
	if got["mobile-1"] != true {
		t.Fatalf("S5: expected mobile-1 shouldNotify=true, got %v", got["mobile-1"])
	}
}

func TestAttentionTabSwitchedMomentsAgo(t *testing.T) {
	now := time.Now()
	clients := []ClientHeartbeatState{
		{ClientID: "web-1", DeviceType: DeviceWeb, AppVisible: false, LastActivityAt: now.Add(-10 * time.Second), HasHeartbeat: true},
	}
	got := EvaluateAttention(clients, "A", now)
	if got["web-1"] != false {
		t.Fatalf("S6: expected web-1 shouldNotify=false, got %v", got["web-1"])
	}
}

func TestAttentionNoHeartbeatDefaultsToNotify(t *testing.T) {
	now := time.Now()
	clients := []ClientHeartbeatState{
		{ClientID: "cli-1", DeviceType: DeviceCLI, HasHeartbeat: false},
	}
	got := EvaluateAttention(clients, "A", now)
	if got["cli-1"] != true {
		t.Fatalf("rule 1: expected cli-1 shouldNotify=true, got %v", got["cli-1"])
	}
}

func TestAttentionOtherClientWatchingSuppressesBoth(t *testing.T) {
	now := time.Now()
	clients := []ClientHeartbeatState{
		{ClientID: "web-1", DeviceType: DeviceWeb, FocusedAgentID: "A", AppVisible: true, LastActivityAt: now, HasHeartbeat: true},
		{ClientID: "mobile-1", DeviceType: DeviceMobile, FocusedAgentID: "", AppVisible: false, LastActivityAt: now, HasHeartbeat: true},
	}
	got := EvaluateAttention(clients, "A", now)
	if got["web-1"] != false || got["mobile-1"] != false {
		t.Fatalf("rule 4/6: expected both suppressed, got web=%v mobile=%v", got["web-1"], got["mobile-1"])
	}
}

func TestAttentionIsPureFunctionOfInputs(t *testing.T) {
	now := time.Now()
	clients := []ClientHeartbeatState{
		{ClientID: "web-1", DeviceType: DeviceWeb, FocusedAgentID: "A", AppVisible: true, LastActivityAt: now, HasHeartbeat: true},
		{ClientID: "mobile-1", DeviceType: DeviceMobile, LastActivityAt: now.Add(-500 * time.Second), HasHeartbeat: true},
	}
	first := EvaluateAttention(clients, "A", now)
	second := EvaluateAttention(clients, "A", now)
	if len(first) != len(second) {
		t.Fatalf("expected identical result sizes across calls")
	}
	for id, want := range first {
		if second[id] != want {
			t.Fatalf("P8: non-deterministic result for %s: %v vs %v", id, want, second[id])
		}
	}
}
