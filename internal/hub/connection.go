package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/getpaseo/paseo/internal/agent"
)

const (
	protocolVersion  = 1
	maxPayloadBytes  = 1 << 20
	sendQueueSize    = 256
	wsPongWait       = 45 * time.Second
	wsWriteWait      = 10 * time.Second
	wsPingInterval   = 20 * time.Second
)

// connection is one authenticated WebSocket client: its read/write loops,
// its Client Session state (spec §3), and the set of agent subscriptions it
// currently holds. Mirrors the gateway's wsSession, generalized from its
// single req/res/event frame shape to the envelope shape spec §6 describes.
type connection struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	id            string
	connectedAt   time.Time
	authenticated atomic.Bool
	subject       string

	mu             sync.Mutex
	deviceType     DeviceType
	focusedAgentID string
	lastActivityAt time.Time
	appVisible     bool
	hasHeartbeat   bool

	subMu sync.Mutex
	subs  map[string]*agent.Subscription // keyed by Subscription.ID
}

func newConnection(h *Hub, conn *websocket.Conn, r *http.Request) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		ctx:         ctx,
		cancel:      cancel,
		id:          uuid.NewString(),
		connectedAt: time.Now(),
		deviceType:  DeviceUnknown,
		subs:        make(map[string]*agent.Subscription),
	}
	if h.auth != nil && h.auth.Enabled() {
		if claims, err := h.auth.Validate(tokenFromRequest(r)); err == nil {
			c.authenticated.Store(true)
			c.subject = claims.Subject
		}
	} else {
		c.authenticated.Store(true)
	}
	return c
}

// heartbeatState snapshots the connection's Client Session for attention
// policy evaluation.
func (c *connection) heartbeatState() ClientHeartbeatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientHeartbeatState{
		ClientID:       c.id,
		DeviceType:     c.deviceType,
		FocusedAgentID: c.focusedAgentID,
		LastActivityAt: c.lastActivityAt,
		AppVisible:     c.appVisible,
		HasHeartbeat:   c.hasHeartbeat,
	}
}

func (c *connection) applyHeartbeat(p HeartbeatPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceType = p.DeviceType
	c.focusedAgentID = p.FocusedAgentID
	c.lastActivityAt = p.LastActivityAt
	c.appVisible = p.AppVisible
	c.hasHeartbeat = true
}

func (c *connection) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

func (c *connection) close() {
	c.cancel()
	c.subMu.Lock()
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil
	c.subMu.Unlock()
	c.hub.forget(c)
	close(c.send)
	_ = c.conn.Close()
}

func (c *connection) readLoop() {
	c.conn.SetReadLimit(maxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendStatus("", errStatus("invalid_frame", err.Error()))
			continue
		}
		if err := validateEnvelope(data, &env); err != nil {
			c.sendStatus(env.RequestID, errStatus("invalid_frame", err.Error()))
			continue
		}

		if !c.authenticated.Load() {
			c.sendStatus(env.RequestID, errStatus("unauthorized", "authentication required"))
			continue
		}

		c.hub.dispatch(c, env)
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *connection) sendEnvelope(typ, requestID string, payload any) {
	env := Envelope{Type: typ, RequestID: requestID, Payload: marshalPayload(payload)}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("hub: dropping frame, send queue full", slog.String("connection", c.id), slog.String("type", typ))
	}
}

func (c *connection) sendStatus(requestID string, status StatusPayload) {
	c.sendEnvelope(TypeStatus, requestID, status)
}

func (c *connection) sendWelcome() {
	c.sendEnvelope(TypeWelcome, "", WelcomePayload{
		ProtocolVersion: protocolVersion,
		ServerVersion:   c.hub.serverVersion,
		Capabilities:    []string{"agents", "persisted_agents", "git_diff", "heartbeat"},
	})
}

func (c *connection) addSubscription(sub *agent.Subscription) {
	c.subMu.Lock()
	c.subs[sub.ID] = sub
	c.subMu.Unlock()
	go c.pump(sub)
}

// pump forwards one Subscription's events to the connection, preserving
// per-(agentId,subscriber) ordering (spec §4.4) since a single goroutine
// per subscription only ever writes to c.send in receive order.
func (c *connection) pump(sub *agent.Subscription) {
	for ev := range sub.Events() {
		if sub.Lagged() {
			if snapshot := c.hub.snapshotFor(sub.Filter); snapshot != nil {
				for _, a := range snapshot {
					c.sendEnvelope(TypeAgentUpsert, "", AgentUpsertPayload{Agent: a})
				}
			}
		}
		c.deliver(ev)
	}
}

func (c *connection) deliver(ev agent.StreamEvent) {
	switch {
	case ev.Removed:
		c.sendEnvelope(TypeAgentRemoved, "", AgentRemovedPayload{AgentID: ev.AgentID})
	case ev.Agent != nil:
		c.sendEnvelope(TypeAgentUpsert, "", AgentUpsertPayload{Agent: ev.Agent})
	case ev.Item != nil:
		c.sendEnvelope(TypeAgentStream, "", AgentStreamPayload{AgentID: ev.AgentID, Item: ev.Item})
	}
}

func (c *connection) notifyAttentionRequired(agentID string) {
	c.sendEnvelope(TypeAttentionRequired, "", AttentionRequiredPayload{AgentID: agentID})
}
