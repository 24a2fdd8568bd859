package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/getpaseo/paseo/internal/agent"
	"github.com/getpaseo/paseo/pkg/paseo"
)

// dispatch routes one validated inbound envelope to its handler (spec §4.4
// Message surface, inbound). Handlers reply on the same connection, either
// with a status frame (requestId echoed) or, for fetch/list, a typed
// response frame.
func (h *Hub) dispatch(c *connection, env Envelope) {
	ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()

	switch env.Type {
	case TypePing:
		c.sendEnvelope(TypePong, env.RequestID, struct{}{})
	case TypeHeartbeat:
		h.handleHeartbeat(c, env)
	case TypeFetchAgentsRequest:
		h.handleFetchAgents(c, env)
	case TypeCreateAgentRequest:
		h.handleCreateAgent(ctx, c, env)
	case TypeResumeAgentRequest:
		h.handleResumeAgent(ctx, c, env)
	case TypeSendMessageRequest:
		h.handleSendMessage(ctx, c, env)
	case TypeCancelAgentRequest:
		h.handleCancelAgent(ctx, c, env)
	case TypeListPersistedAgentsRequest:
		h.handleListPersistedAgents(ctx, c, env)
	case TypeGitDiffRequest:
		h.handleGitDiff(c, env)
	case TypeShutdownServerRequest:
		h.handleShutdownServer(c, env)
	default:
		c.sendStatus(env.RequestID, errStatus("unknown_type", "unrecognized message type: "+env.Type))
	}
}

func (h *Hub) handleHeartbeat(c *connection, env Envelope) {
	var p HeartbeatPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.sendStatus(env.RequestID, errStatus("bad_payload", err.Error()))
		return
	}
	c.applyHeartbeat(p)
	c.sendStatus(env.RequestID, okStatus())
}

func (h *Hub) handleFetchAgents(c *connection, env Envelope) {
	var p FetchAgentsPayload
	_ = json.Unmarshal(env.Payload, &p)

	agents := h.manager.ListAgents()
	for _, a := range agents {
		c.sendEnvelope(TypeAgentUpsert, env.RequestID, AgentUpsertPayload{Agent: a})
	}
	if p.Subscribe {
		c.addSubscription(h.manager.Subscribe(agent.Filter{All: true}))
	}
	c.sendStatus(env.RequestID, okStatus())
}

func (h *Hub) handleCreateAgent(ctx context.Context, c *connection, env Envelope) {
	var p CreateAgentPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.sendStatus(env.RequestID, errStatus("bad_payload", err.Error()))
		return
	}
	a, err := h.manager.CreateAgent(ctx, paseo.CreateAgentConfig{
		Provider:     p.Provider,
		Cwd:          p.Cwd,
		ModeID:       p.ModeID,
		Model:        p.Model,
		Extra:        p.Extra,
		Title:        p.Title,
		WorktreeName: p.WorktreeName,
	})
	if err != nil {
		c.sendStatus(env.RequestID, statusForError(err))
		return
	}
	c.addSubscription(h.manager.Subscribe(agent.Filter{AgentID: a.ID}))
	c.sendEnvelope(TypeAgentUpsert, env.RequestID, AgentUpsertPayload{Agent: a})
	c.sendStatus(env.RequestID, okStatus())
}

func (h *Hub) handleResumeAgent(ctx context.Context, c *connection, env Envelope) {
	var p ResumeAgentPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.sendStatus(env.RequestID, errStatus("bad_payload", err.Error()))
		return
	}
	a, err := h.manager.ResumeAgent(ctx, p.Handle, p.Overrides, p.PreferredID)
	if err != nil {
		c.sendStatus(env.RequestID, statusForError(err))
		return
	}
	c.addSubscription(h.manager.Subscribe(agent.Filter{AgentID: a.ID}))
	c.sendEnvelope(TypeAgentUpsert, env.RequestID, AgentUpsertPayload{Agent: a})
	c.sendStatus(env.RequestID, okStatus())
}

func (h *Hub) handleSendMessage(ctx context.Context, c *connection, env Envelope) {
	var p SendMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.sendStatus(env.RequestID, errStatus("bad_payload", err.Error()))
		return
	}
	msg := paseo.OutgoingMessage{Text: p.Text, Images: p.Images, ClientMessageID: p.ClientMessageID}
	err := h.manager.SendMessage(ctx, p.AgentID, msg)
	if err != nil {
		c.sendStatus(env.RequestID, statusForError(err))
		return
	}
	c.sendStatus(env.RequestID, okStatus())
}

func (h *Hub) handleCancelAgent(ctx context.Context, c *connection, env Envelope) {
	var p CancelAgentPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.sendStatus(env.RequestID, errStatus("bad_payload", err.Error()))
		return
	}
	if err := h.manager.CancelAgent(ctx, p.AgentID); err != nil {
		c.sendStatus(env.RequestID, statusForError(err))
		return
	}
	c.sendStatus(env.RequestID, okStatus())
}

func (h *Hub) handleListPersistedAgents(ctx context.Context, c *connection, env Envelope) {
	var p ListPersistedAgentsPayload
	_ = json.Unmarshal(env.Payload, &p)
	agents, err := h.manager.ListPersistedAgents(ctx, p.Provider, p.Limit)
	if err != nil {
		c.sendStatus(env.RequestID, statusForError(err))
		return
	}
	c.sendEnvelope(TypeListPersistedAgentsResponse, env.RequestID, ListPersistedAgentsResponse{Agents: agents})
	c.sendStatus(env.RequestID, okStatus())
}

// handleGitDiff is an opaque pass-through: git/worktree helpers are out of
// scope, so the Hub replies with a not-implemented status and leaves actual
// diff production to whatever out-of-process tool the client is paired
// with.
func (h *Hub) handleGitDiff(c *connection, env Envelope) {
	c.sendStatus(env.RequestID, errStatus("not_implemented", "git diff is handled out of process"))
}

func (h *Hub) handleShutdownServer(c *connection, env Envelope) {
	c.sendStatus(env.RequestID, okStatus())
	h.requestShutdown()
}

func statusForError(err error) StatusPayload {
	var clientErr *agent.ClientRequestError
	var notFound *agent.NotFoundError
	var providerErr *agent.ProviderStartupError
	switch {
	case errors.As(err, &clientErr):
		return errStatus("invalid_request", clientErr.Error())
	case errors.As(err, &notFound):
		return errStatus("not_found", notFound.Error())
	case errors.As(err, &providerErr):
		return errStatus("provider_error", providerErr.Error())
	default:
		return errStatus("internal_error", err.Error())
	}
}
