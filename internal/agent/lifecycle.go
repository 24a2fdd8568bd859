package agent

import "github.com/getpaseo/paseo/pkg/paseo"

// transitions enumerates every legal (from, to) status edge (spec §3
// Lifecycles): created -> initializing -> idle <-> running ->
// (interrupting -> idle) -> ended, with error reachable from any
// non-terminal state.
var transitions = map[paseo.AgentStatus]map[paseo.AgentStatus]bool{
	paseo.StatusInitializing: {
		paseo.StatusIdle:    true,
		paseo.StatusRunning: true,
		paseo.StatusError:   true,
		paseo.StatusEnded:   true,
	},
	paseo.StatusIdle: {
		paseo.StatusRunning: true,
		paseo.StatusError:   true,
		paseo.StatusEnded:   true,
	},
	paseo.StatusRunning: {
		paseo.StatusIdle:         true,
		paseo.StatusInterrupting: true,
		paseo.StatusError:        true,
		paseo.StatusEnded:        true,
	},
	paseo.StatusInterrupting: {
		paseo.StatusIdle:  true,
		paseo.StatusError: true,
		paseo.StatusEnded: true,
	},
}

// canTransition reports whether moving from -> to is a legal lifecycle edge.
// Terminal states (ended, error) accept no further transitions; resume
// operates by creating a fresh agent record, not by reviving a terminal one.
func canTransition(from, to paseo.AgentStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// transitionError reports an illegal status edge; the caller decides
// whether to treat it as a hard failure or to log-and-ignore.
type transitionError struct {
	AgentID string
	From    paseo.AgentStatus
	To      paseo.AgentStatus
}

func (e *transitionError) Error() string {
	return "agent " + e.AgentID + ": illegal transition " + string(e.From) + " -> " + string(e.To)
}
