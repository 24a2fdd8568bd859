package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/getpaseo/paseo/internal/agent"
	"github.com/getpaseo/paseo/internal/metrics"
	"github.com/getpaseo/paseo/pkg/paseo"
)

// Hub is the Session Hub (spec §4.4): it owns the set of live WebSocket
// connections, relays Agent Manager events to the subscriptions each
// connection holds, and evaluates the attention policy whenever an agent
// needs a client's notice.
type Hub struct {
	manager       ManagerAPI
	logger        *slog.Logger
	serverVersion string
	metrics       *metrics.Metrics

	connMu sync.RWMutex
	conns  map[string]*connection

	agentSub *agent.Subscription

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// New constructs a Hub bound to manager. Call Run to start relaying events;
// it does not own an HTTP listener itself (see Server in server.go).
func New(manager ManagerAPI, logger *slog.Logger, serverVersion string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		manager:       manager,
		logger:        logger,
		serverVersion: serverVersion,
		conns:         make(map[string]*connection),
		shutdownCh:    make(chan struct{}),
	}
}

// SetMetrics attaches the Prometheus instrument set; optional, nil-safe
// when unset.
func (h *Hub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// ShutdownRequested is closed once a client's shutdown_server_request has
// been handled; cmd/paseod selects on it alongside OS signals so a
// cooperative "daemon stop" actually ends the process instead of only
// tearing down the Agent Manager.
func (h *Hub) ShutdownRequested() <-chan struct{} {
	return h.shutdownCh
}

// requestShutdown is called from handleShutdownServer; safe to call more
// than once.
func (h *Hub) requestShutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdownCh) })
}

// Run subscribes to every agent's events and relays attention-required
// pushes until stop is closed. Intended to run in its own goroutine for the
// lifetime of the daemon.
func (h *Hub) Run(stop <-chan struct{}) {
	sub := h.manager.Subscribe(agent.Filter{All: true})
	h.agentSub = sub
	defer sub.Unsubscribe()

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			h.onAgentEvent(ev)
		}
	}
}

// onAgentEvent evaluates the attention policy for every agent snapshot
// whose status is idle or error and pushes attention_required to clients
// the policy says should be notified. The previous status is not checked,
// so any idle snapshot (including the first one after a provider starts)
// triggers an evaluation; stream items are not inspected. Per-connection
// subscriptions (registered via addSubscription) deliver the raw event
// itself; this only adds the supplementary notification frame.
func (h *Hub) onAgentEvent(ev agent.StreamEvent) {
	if ev.Agent == nil {
		return
	}
	if ev.Agent.Status != paseo.StatusIdle && ev.Agent.Status != paseo.StatusError {
		return
	}

	now := time.Now()
	clients := h.heartbeatSnapshot()
	decisions := EvaluateAttention(clients, ev.AgentID, now)

	h.connMu.RLock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.connMu.RUnlock()

	h.broadcastAttention(conns, decisions, ev.AgentID)
}

func (h *Hub) heartbeatSnapshot() []ClientHeartbeatState {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	out := make([]ClientHeartbeatState, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c.heartbeatState())
	}
	return out
}

func (h *Hub) register(c *connection) {
	h.connMu.Lock()
	h.conns[c.id] = c
	h.connMu.Unlock()
	if h.metrics != nil {
		h.metrics.HubConnections.Inc()
	}
}

func (h *Hub) forget(c *connection) {
	h.connMu.Lock()
	delete(h.conns, c.id)
	h.connMu.Unlock()
	if h.metrics != nil {
		h.metrics.HubConnections.Dec()
	}
}

// snapshotFor returns the current agent set matching filter, used to
// resynchronize a connection after its subscription lags (spec §4.4
// back-pressure: resend a full snapshot rather than drop silently).
func (h *Hub) snapshotFor(filter agent.Filter) []*paseo.Agent {
	all := h.manager.ListAgents()
	if filter.All {
		return all
	}
	out := make([]*paseo.Agent, 0, 1)
	for _, a := range all {
		if a.ID == filter.AgentID {
			out = append(out, a)
		}
	}
	return out
}

// ConnectionCount reports the number of live connections, for /healthz-style
// diagnostics.
func (h *Hub) ConnectionCount() int {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return len(h.conns)
}
