// Package hub implements the Session Hub (spec §4.4): the WebSocket server
// that authenticates clients, dispatches their requests to the Agent
// Manager, fans canonical events back out to subscribers, and applies the
// attention/notification policy.
package hub

import (
	"context"

	"github.com/getpaseo/paseo/internal/agent"
	"github.com/getpaseo/paseo/pkg/paseo"
)

// ManagerAPI is the one-way interface the Hub depends on (spec §9:
// "Cyclic references between Manager <-> Registry <-> Hub are replaced
// with one-way interfaces"). *agent.Manager satisfies this; the Hub never
// imports anything that would let the Manager depend back on it.
type ManagerAPI interface {
	CreateAgent(ctx context.Context, config paseo.CreateAgentConfig) (*paseo.Agent, error)
	ResumeAgent(ctx context.Context, handle *paseo.PersistenceHandle, overrides paseo.ResumeOverrides, preferredID string) (*paseo.Agent, error)
	SendMessage(ctx context.Context, agentID string, msg paseo.OutgoingMessage) error
	CancelAgent(ctx context.Context, agentID string) error
	DeleteAgent(ctx context.Context, agentID string) error
	Subscribe(filter agent.Filter) *agent.Subscription
	ListAgents() []*paseo.Agent
	ListPersistedAgents(ctx context.Context, filterProvider paseo.Provider, limit int) ([]paseo.PersistedAgentSummary, error)
	Shutdown(ctx context.Context)
}

var _ ManagerAPI = (*agent.Manager)(nil)
