package hub

import "time"

// recentWindow bounds how long ago a client's lastActivityAt may be and
// still count as "recent" for attention purposes (spec §4.4 rule 2).
const recentWindow = 120 * time.Second

// DeviceType mirrors the Client Session's deviceType (spec §3).
type DeviceType string

const (
	DeviceWeb     DeviceType = "web"
	DeviceMobile  DeviceType = "mobile"
	DeviceCLI     DeviceType = "cli"
	DeviceUnknown DeviceType = "unknown"
)

// ClientHeartbeatState is the attention policy's view of one connected
// client: its most recent heartbeat frame, or its absence.
type ClientHeartbeatState struct {
	ClientID       string
	DeviceType     DeviceType
	FocusedAgentID string
	LastActivityAt time.Time
	AppVisible     bool
	HasHeartbeat   bool
}

func (c ClientHeartbeatState) recent(now time.Time) bool {
	return now.Sub(c.LastActivityAt) < recentWindow
}

// watching reports whether c is actively looking at agentID right now
// (spec §4.4 rule 3).
func (c ClientHeartbeatState) watching(agentID string, now time.Time) bool {
	return c.HasHeartbeat && c.FocusedAgentID == agentID && c.AppVisible && c.recent(now)
}

// EvaluateAttention computes shouldNotify for every connected client given
// an agent that just completed a turn or errored (spec §4.4 Attention
// policy). The result is a pure function of (clients, agentID, now) (P8).
//
// Rule 7 only spells out one fallback case ("mobile without heartbeat, web
// stale"); rule 1 already covers the no-heartbeat half of it. Generalizing
// the rest of rule 7's intent — notify on the device most likely to still
// be reachable when nothing else in range 1-6 already decided the
// question — resolves to: default true for every non-web device, false for
// web. That is the only default consistent with both S5 (stale web +
// stale mobile: web false, mobile true) and S6 (lone web client, recent
// but backgrounded: false).
func EvaluateAttention(clients []ClientHeartbeatState, agentID string, now time.Time) map[string]bool {
	result := make(map[string]bool, len(clients))

	for _, c := range clients {
		// Rule 1: no heartbeat at all is a safe default to notify.
		if !c.HasHeartbeat {
			result[c.ClientID] = true
			continue
		}

		// Rule 3: this client is watching the agent right now.
		if c.watching(agentID, now) {
			result[c.ClientID] = false
			continue
		}

		// Rule 4: some other client is watching, so this one doesn't need to nag.
		if anyOtherWatching(clients, c.ClientID, agentID, now) {
			result[c.ClientID] = false
			continue
		}

		// Rule 5: a stale web client yields to mobile.
		if c.DeviceType == DeviceWeb && !c.recent(now) {
			result[c.ClientID] = false
			continue
		}

		// Rule 6: user present and recently active across more than one
		// device at once; none of them needs to nag.
		if c.recent(now) && anyOtherRecentOnDifferentDevice(clients, c, now) {
			result[c.ClientID] = false
			continue
		}

		result[c.ClientID] = c.DeviceType != DeviceWeb
	}

	return result
}

func anyOtherWatching(clients []ClientHeartbeatState, selfID, agentID string, now time.Time) bool {
	for _, c := range clients {
		if c.ClientID == selfID {
			continue
		}
		if c.watching(agentID, now) {
			return true
		}
	}
	return false
}

func anyOtherRecentOnDifferentDevice(clients []ClientHeartbeatState, self ClientHeartbeatState, now time.Time) bool {
	for _, c := range clients {
		if c.ClientID == self.ClientID || !c.HasHeartbeat {
			continue
		}
		if c.DeviceType != self.DeviceType && c.recent(now) {
			return true
		}
	}
	return false
}
