// Package agent implements the Agent Manager (spec §4.1): ownership of the
// set of live agents, per-agent mutation serialization via a mailbox
// goroutine, provider-session driving, and canonical event publication to
// subscribers.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/getpaseo/paseo/internal/metrics"
	"github.com/getpaseo/paseo/internal/provider"
	"github.com/getpaseo/paseo/internal/registry"
	"github.com/getpaseo/paseo/internal/timeline"
	"github.com/getpaseo/paseo/internal/tracing"
	"github.com/getpaseo/paseo/pkg/paseo"
)

const (
	defaultAutoWakeWindow   = 10 * time.Minute
	defaultDrainTimeout     = 30 * time.Second
	defaultAdapterStartTime = 60 * time.Second
	defaultCancelSettle     = 10 * time.Second
)

var worktreeNamePattern = regexp.MustCompile(`^[a-z0-9](-?[a-z0-9])*$`)

// RegistryStore is the subset of internal/registry.Store the Manager needs;
// declared locally so agent doesn't import registry's driver packages
// (sqlite/postgres) just to persist snapshots.
type RegistryStore interface {
	ApplySnapshot(ctx context.Context, agent *paseo.Agent, updatedAt time.Time) error
	Get(ctx context.Context, id string) (*paseo.Agent, error)
	List(ctx context.Context) ([]*paseo.Agent, error)
	Delete(ctx context.Context, id string) error
}

// Manager owns the set of live agents (spec §4.1).
type Manager struct {
	providers *provider.Registry
	store     RegistryStore
	log       *slog.Logger
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer

	autoWakeWindow   time.Duration
	drainTimeout     time.Duration
	adapterStartTime time.Duration

	mu     sync.RWMutex
	agents map[string]*agentRuntime

	subs *subscriberRegistry
}

// agentRuntime is the live, mailbox-serialized state for one agent.
type agentRuntime struct {
	mailbox *mailbox

	mu      sync.Mutex
	agent   paseo.Agent
	state   *timeline.State
	adapter provider.Adapter
	session provider.SessionHandle
	stream  provider.EventStream

	inbox []paseo.OutgoingMessage
	seenClientMsgIDs map[string]bool

	cancelPump context.CancelFunc
	wakeTimer  *time.Timer
	ended      bool

	turnCtx  context.Context
	turnSpan trace.Span

	toolSpans map[string]trace.Span
}

// Options configures a Manager; zero values fall back to spec defaults.
type Options struct {
	Providers        *provider.Registry
	Store            RegistryStore
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
	Tracer           *tracing.Tracer
	AutoWakeWindow   time.Duration
	DrainTimeout     time.Duration
	AdapterStartTime time.Duration
}

// NewManager constructs a Manager ready to accept createAgent/resumeAgent
// calls.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		providers:        opts.Providers,
		store:            opts.Store,
		log:              logger,
		metrics:          opts.Metrics,
		tracer:           opts.Tracer,
		autoWakeWindow:   orDefault(opts.AutoWakeWindow, defaultAutoWakeWindow),
		drainTimeout:     orDefault(opts.DrainTimeout, defaultDrainTimeout),
		adapterStartTime: orDefault(opts.AdapterStartTime, defaultAdapterStartTime),
		agents:           map[string]*agentRuntime{},
		subs:             newSubscriberRegistry(),
	}
	return m
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// CreateAgent validates config, allocates an id, records the agent as
// initializing, and starts the provider asynchronously (spec §4.1
// createAgent).
func (m *Manager) CreateAgent(ctx context.Context, config paseo.CreateAgentConfig) (*paseo.Agent, error) {
	adapter, err := m.providers.Get(config.Provider)
	if err != nil {
		return nil, &ClientRequestError{Message: "provider not registered", Cause: err}
	}
	if config.Cwd == "" {
		return nil, &ClientRequestError{Message: "cwd is required"}
	}
	if config.WorktreeName != "" && !validWorktreeName(config.WorktreeName) {
		return nil, &ClientRequestError{Message: fmt.Sprintf("invalid worktree name %q", config.WorktreeName)}
	}

	id := uuid.NewString()
	now := time.Now()
	agent := paseo.Agent{
		ID:             id,
		Provider:       config.Provider,
		Cwd:            config.Cwd,
		Title:          config.Title,
		CreatedAt:      now,
		LastActivityAt: now,
		Status:         paseo.StatusInitializing,
		ModeID:         config.ModeID,
		Model:          config.Model,
	}
	if config.WorktreeName != "" {
		agent.Worktree = &paseo.WorktreeDescriptor{Name: config.WorktreeName}
	}

	rt := &agentRuntime{
		mailbox:          newMailbox(),
		agent:            agent,
		state:            timeline.NewState(),
		adapter:          adapter,
		seenClientMsgIDs: map[string]bool{},
	}

	m.mu.Lock()
	m.agents[id] = rt
	m.mu.Unlock()

	m.persist(&rt.agent)
	m.publishSnapshot(&rt.agent)

	go m.startProvider(rt, func(ctx context.Context) (provider.SessionHandle, provider.EventStream, error) {
		return adapter.Start(ctx, config)
	})

	return rt.agent.Clone(), nil
}

// ResumeAgent attaches to a persisted session via its provider-specific
// handle (spec §4.1 resumeAgent).
func (m *Manager) ResumeAgent(ctx context.Context, handle *paseo.PersistenceHandle, overrides paseo.ResumeOverrides, preferredID string) (*paseo.Agent, error) {
	if handle == nil {
		return nil, &ClientRequestError{Message: "persistence handle is required"}
	}
	adapter, err := m.providers.Get(handle.Provider)
	if err != nil {
		return nil, &ClientRequestError{Message: "provider not registered", Cause: err}
	}

	id := preferredID
	m.mu.Lock()
	if id != "" {
		if _, taken := m.agents[id]; taken {
			id = ""
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	agent := paseo.Agent{
		ID:                id,
		Provider:          handle.Provider,
		Title:             overrides.Title,
		ModeID:            overrides.ModeID,
		Model:             overrides.Model,
		CreatedAt:         now,
		LastActivityAt:    now,
		Status:            paseo.StatusInitializing,
		PersistenceHandle: handle,
	}
	rt := &agentRuntime{
		mailbox:          newMailbox(),
		agent:            agent,
		state:            timeline.NewState(),
		adapter:          adapter,
		seenClientMsgIDs: map[string]bool{},
	}
	m.agents[id] = rt
	m.mu.Unlock()

	m.persist(&rt.agent)
	m.publishSnapshot(&rt.agent)

	go m.startProvider(rt, func(ctx context.Context) (provider.SessionHandle, provider.EventStream, error) {
		return adapter.Resume(ctx, handle, overrides)
	})

	return rt.agent.Clone(), nil
}

func validWorktreeName(name string) bool {
	return len(name) <= 100 && worktreeNamePattern.MatchString(name)
}

// startProvider runs the (possibly slow) provider Start/Resume call with a
// startup timeout, then hands the stream off to the pump.
func (m *Manager) startProvider(rt *agentRuntime, launch func(ctx context.Context) (provider.SessionHandle, provider.EventStream, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), m.adapterStartTime)
	defer cancel()

	if m.metrics != nil {
		m.metrics.RecordTransition(string(rt.agent.Provider), "", string(paseo.StatusInitializing), false)
	}
	started := time.Now()
	session, stream, err := launch(ctx)
	if m.metrics != nil {
		m.metrics.RecordProviderStart(string(rt.agent.Provider), time.Since(started).Seconds(), err)
	}
	if err != nil {
		m.transitionError(rt, &ProviderStartupError{Provider: string(rt.agent.Provider), Cause: err})
		return
	}

	rt.mu.Lock()
	rt.session = session
	rt.stream = stream
	rt.mu.Unlock()

	m.setStatus(rt, paseo.StatusIdle, "")
	m.runPump(rt)
}

// runPump keeps the stream pump alive for autoWakeWindow after each idle
// transition (spec §4.1 Background wake), re-arming on every new event.
func (m *Manager) runPump(rt *agentRuntime) {
	pumpCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.cancelPump = cancel
	rt.mu.Unlock()

	for {
		select {
		case ev, ok := <-rt.stream.Events():
			if !ok {
				m.handleStreamClosed(rt)
				return
			}
			m.armWakeTimer(rt)
			m.handleProviderEvent(rt, ev)
		case <-pumpCtx.Done():
			return
		}
	}
}

func (m *Manager) armWakeTimer(rt *agentRuntime) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.wakeTimer != nil {
		rt.wakeTimer.Stop()
	}
	cancel := rt.cancelPump
	rt.wakeTimer = time.AfterFunc(m.autoWakeWindow, func() {
		if cancel != nil {
			cancel()
		}
		m.closeAdapter(rt)
	})
}

func (m *Manager) handleStreamClosed(rt *agentRuntime) {
	rt.mu.Lock()
	ended := rt.ended
	rt.mu.Unlock()
	if ended {
		return
	}
	m.setStatus(rt, paseo.StatusEnded, "")
}

func (m *Manager) handleProviderEvent(rt *agentRuntime, ev provider.StreamEvent) {
	if isTurnComplete(ev) {
		m.onTurnComplete(rt)
		return
	}

	rt.mu.Lock()
	cwd := rt.agent.Cwd
	rt.mu.Unlock()

	tev, ts, ok := translateTimelineEvent(ev, cwd)
	if !ok {
		return
	}

	_, err := submit(context.Background(), rt.mailbox, func(ctx context.Context) (struct{}, error) {
		rt.mu.Lock()
		before := len(rt.state.Items)
		rt.state = timeline.Reduce(rt.state, tev, ts)
		after := len(rt.state.Items)
		if after == 0 {
			rt.mu.Unlock()
			return struct{}{}, nil
		}
		item := rt.state.Items[after-1]
		changed := after != before || item.Timestamp.Equal(ts)
		rt.agent.LastActivityAt = ts
		agentSnapshot := rt.agent
		rt.mu.Unlock()

		if !changed {
			return struct{}{}, nil
		}
		if m.tracer != nil && item.Kind == paseo.KindToolCall && item.ToolCall != nil && item.ToolCall.Agent != nil {
			m.traceToolCall(rt, item.ToolCall)
		}
		m.persist(&agentSnapshot)
		m.publish(agentSnapshot.ID, StreamEvent{AgentID: agentSnapshot.ID, Item: &item})
		return struct{}{}, nil
	})
	if err != nil {
		m.log.Warn("dropping provider event after mailbox submit failure", "agentId", rt.agent.ID, "error", err)
	}
}

// traceToolCall opens a child span under the agent's current turn span on
// the first sighting of a tool call and ends it once the call settles.
func (m *Manager) traceToolCall(rt *agentRuntime, call *paseo.AgentToolCall) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.toolSpans == nil {
		rt.toolSpans = make(map[string]trace.Span)
	}

	switch call.Status {
	case paseo.ToolCallCompleted, paseo.ToolCallFailed:
		if span, ok := rt.toolSpans[call.CallID]; ok {
			if call.Status == paseo.ToolCallFailed {
				span.SetStatus(codes.Error, call.Error)
			}
			span.End()
			delete(rt.toolSpans, call.CallID)
		}
	default:
		if _, ok := rt.toolSpans[call.CallID]; ok {
			return
		}
		parent := rt.turnCtx
		if parent == nil {
			parent = context.Background()
		}
		_, span := m.tracer.StartToolCall(parent, call.Tool, call.CallID)
		rt.toolSpans[call.CallID] = span
	}
}

// onTurnComplete moves a running agent back to idle and, if a message
// queued behind the turn in the inbox, immediately starts the next one
// (spec §4.1: "queues behind the current turn" implies draining on idle).
func (m *Manager) onTurnComplete(rt *agentRuntime) {
	rt.mu.Lock()
	status := rt.agent.Status
	rt.mu.Unlock()
	if status != paseo.StatusRunning && status != paseo.StatusInterrupting {
		return
	}
	m.setStatus(rt, paseo.StatusIdle, "")

	rt.mu.Lock()
	if rt.turnSpan != nil {
		rt.turnSpan.End()
		rt.turnSpan = nil
		rt.turnCtx = nil
	}
	var next *paseo.OutgoingMessage
	if len(rt.inbox) > 0 {
		msg := rt.inbox[0]
		rt.inbox = rt.inbox[1:]
		next = &msg
	}
	adapter := rt.adapter
	session := rt.session
	rt.mu.Unlock()

	if next == nil {
		return
	}
	m.setStatus(rt, paseo.StatusRunning, "")
	if m.tracer != nil {
		rt.mu.Lock()
		rt.turnCtx, rt.turnSpan = m.tracer.StartTurn(context.Background(), rt.agent.ID, string(rt.agent.Provider))
		rt.mu.Unlock()
	}
	if err := adapter.Send(context.Background(), session, *next); err != nil {
		m.transitionError(rt, &ProviderStartupError{Provider: string(rt.agent.Provider), Cause: err})
	}
}

// SendMessage enqueues text to the agent's inbox, starting the turn if idle
// (spec §4.1 sendMessage).
func (m *Manager) SendMessage(ctx context.Context, agentID string, msg paseo.OutgoingMessage) error {
	rt, err := m.lookup(agentID)
	if err != nil {
		return err
	}

	_, err = submit(ctx, rt.mailbox, func(ctx context.Context) (struct{}, error) {
		rt.mu.Lock()
		if msg.ClientMessageID != "" && rt.seenClientMsgIDs[msg.ClientMessageID] {
			rt.mu.Unlock()
			return struct{}{}, nil
		}
		if msg.ClientMessageID != "" {
			rt.seenClientMsgIDs[msg.ClientMessageID] = true
		}
		status := rt.agent.Status
		adapter := rt.adapter
		session := rt.session
		rt.mu.Unlock()

		now := time.Now()
		tev := timeline.Event{Kind: timeline.EventUserMessage, MessageID: msg.ClientMessageID, Text: msg.Text, Images: msg.Images}
		rt.mu.Lock()
		rt.state = timeline.Reduce(rt.state, tev, now)
		rt.agent.LastActivityAt = now
		rt.mu.Unlock()

		if status == paseo.StatusIdle {
			m.setStatus(rt, paseo.StatusRunning, "")
			if m.tracer != nil {
				rt.mu.Lock()
				rt.turnCtx, rt.turnSpan = m.tracer.StartTurn(context.Background(), rt.agent.ID, string(rt.agent.Provider))
				rt.mu.Unlock()
			}
			if err := adapter.Send(ctx, session, msg); err != nil {
				m.transitionError(rt, &ProviderStartupError{Provider: string(rt.agent.Provider), Cause: err})
			}
		} else {
			rt.mu.Lock()
			rt.inbox = append(rt.inbox, msg)
			rt.mu.Unlock()
		}
		return struct{}{}, nil
	})
	return err
}

// CancelAgent transitions running -> interrupting, forwards cancel to the
// adapter, and forces idle if the adapter doesn't settle within 10s (spec
// §4.1 cancelAgent).
func (m *Manager) CancelAgent(ctx context.Context, agentID string) error {
	rt, err := m.lookup(agentID)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	status := rt.agent.Status
	adapter := rt.adapter
	session := rt.session
	rt.mu.Unlock()

	if status != paseo.StatusRunning {
		return nil
	}
	m.setStatus(rt, paseo.StatusInterrupting, "")
	if err := adapter.Cancel(ctx, session); err != nil {
		m.log.Warn("adapter cancel failed", "agentId", agentID, "error", err)
	}

	go func() {
		timer := time.NewTimer(defaultCancelSettle)
		defer timer.Stop()
		<-timer.C
		rt.mu.Lock()
		stillInterrupting := rt.agent.Status == paseo.StatusInterrupting
		rt.mu.Unlock()
		if stillInterrupting {
			m.setStatus(rt, paseo.StatusIdle, "")
			m.emitActivityLog(rt, paseo.ActivityTypeSystem, "agent interrupted")
		}
	}()
	return nil
}

// DeleteAgent cancels if needed, closes the subprocess, removes the
// registry record, and emits agent_removed (spec §4.1 deleteAgent).
func (m *Manager) DeleteAgent(ctx context.Context, agentID string) error {
	rt, err := m.lookup(agentID)
	if err != nil {
		return err
	}

	_ = m.CancelAgent(ctx, agentID)
	m.closeAdapter(rt)

	m.mu.Lock()
	delete(m.agents, agentID)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, agentID); err != nil {
			m.log.Warn("registry delete failed", "agentId", agentID, "error", err)
		}
	}
	m.publish(agentID, StreamEvent{AgentID: agentID, Removed: true})
	return nil
}

func (m *Manager) closeAdapter(rt *agentRuntime) {
	rt.mu.Lock()
	if rt.ended {
		rt.mu.Unlock()
		return
	}
	rt.ended = true
	adapter := rt.adapter
	session := rt.session
	cancel := rt.cancelPump
	if rt.wakeTimer != nil {
		rt.wakeTimer.Stop()
	}
	for id, span := range rt.toolSpans {
		span.End()
		delete(rt.toolSpans, id)
	}
	if rt.turnSpan != nil {
		rt.turnSpan.End()
		rt.turnSpan = nil
	}
	rt.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if adapter != nil && session != nil {
		_ = adapter.Close(context.Background(), session)
	}
}

// Subscribe returns a Subscription scoped by filter; the caller is expected
// to immediately snapshot current agents via ListAgents for the synchronous
// half of spec §4.1 subscribe.
func (m *Manager) Subscribe(filter Filter) *Subscription {
	return m.subs.add(filter)
}

// ListAgents returns a snapshot of every live agent the Manager holds.
func (m *Manager) ListAgents() []*paseo.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*paseo.Agent, 0, len(m.agents))
	for _, rt := range m.agents {
		rt.mu.Lock()
		out = append(out, rt.agent.Clone())
		rt.mu.Unlock()
	}
	return out
}

// ListPersistedAgents delegates to every registered provider's
// listPersisted and merges the results (spec §4.1 listPersistedAgents).
func (m *Manager) ListPersistedAgents(ctx context.Context, filterProvider paseo.Provider, limit int) ([]paseo.PersistedAgentSummary, error) {
	var out []paseo.PersistedAgentSummary
	providers := m.providers.Providers()
	for _, p := range providers {
		if filterProvider != "" && p != filterProvider {
			continue
		}
		adapter, err := m.providers.Get(p)
		if err != nil {
			continue
		}
		summaries, err := adapter.ListPersisted(ctx, limit)
		if err != nil {
			m.log.Warn("listPersisted failed", "provider", p, "error", err)
			continue
		}
		out = append(out, summaries...)
	}
	return out, nil
}

// Shutdown cancels every live agent, waits drainTimeout, then force-closes
// whatever remains (spec §4.1 shutdown).
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	rts := make([]*agentRuntime, 0, len(m.agents))
	for _, rt := range m.agents {
		rts = append(rts, rt)
	}
	m.mu.RUnlock()

	for _, rt := range rts {
		_ = m.CancelAgent(ctx, rt.agent.ID)
	}

	done := make(chan struct{})
	go func() {
		for _, rt := range rts {
			rt.mu.Lock()
			for rt.agent.Status == paseo.StatusInterrupting {
				rt.mu.Unlock()
				time.Sleep(50 * time.Millisecond)
				rt.mu.Lock()
			}
			rt.mu.Unlock()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.drainTimeout):
	}

	for _, rt := range rts {
		m.closeAdapter(rt)
		rt.mailbox.close()
	}
}

func (m *Manager) lookup(agentID string) (*agentRuntime, error) {
	m.mu.RLock()
	rt, ok := m.agents[agentID]
	m.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{AgentID: agentID}
	}
	return rt, nil
}

func (m *Manager) setStatus(rt *agentRuntime, status paseo.AgentStatus, errMsg string) {
	rt.mu.Lock()
	from := rt.agent.Status
	if !canTransition(from, status) {
		rt.mu.Unlock()
		m.log.Warn("illegal status transition", "agentId", rt.agent.ID, "from", from, "to", status)
		return
	}
	rt.agent.Status = status
	rt.agent.LastActivityAt = time.Now()
	if errMsg != "" {
		rt.agent.ErrorMessage = errMsg
	}
	snapshot := rt.agent
	rt.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordTransition(string(snapshot.Provider), string(from), string(status), status.Terminal())
	}

	m.persist(&snapshot)
	m.publishSnapshot(&snapshot)
}

func (m *Manager) transitionError(rt *agentRuntime, err error) {
	m.log.Error("agent provider failure", "agentId", rt.agent.ID, "error", err)
	m.setStatus(rt, paseo.StatusError, err.Error())
	m.emitActivityLog(rt, paseo.ActivityTypeError, err.Error())
}

func (m *Manager) emitActivityLog(rt *agentRuntime, activityType paseo.ActivityType, message string) {
	now := time.Now()

	rt.mu.Lock()
	rt.state = timeline.Reduce(rt.state, timeline.Event{Kind: timeline.EventActivity, ActivityType: activityType, Message: message}, now)
	item := rt.state.Items[len(rt.state.Items)-1]
	agentID := rt.agent.ID
	rt.mu.Unlock()

	m.publish(agentID, StreamEvent{AgentID: agentID, Item: &item})
}

func (m *Manager) persist(agent *paseo.Agent) {
	if m.store == nil {
		return
	}
	if err := m.store.ApplySnapshot(context.Background(), agent, agent.LastActivityAt); err != nil && !errors.Is(err, registry.ErrStale) {
		m.log.Warn("registry persist failed", "agentId", agent.ID, "error", err)
	}
}

func (m *Manager) publishSnapshot(agent *paseo.Agent) {
	m.publish(agent.ID, StreamEvent{AgentID: agent.ID, Agent: agent.Clone()})
}

// publish relays ev to every subscription matching agentID and records any
// overflow against SubscriberLagged (spec §4.4 back-pressure).
func (m *Manager) publish(agentID string, ev StreamEvent) {
	overflowed := m.subs.publish(agentID, ev)
	if m.metrics != nil && len(overflowed) > 0 {
		for range overflowed {
			m.metrics.SubscriberLagged.Inc()
		}
	}
}
