package agent

import (
	"context"
	"testing"
	"time"

	"github.com/getpaseo/paseo/internal/provider"
	"github.com/getpaseo/paseo/internal/registry"
	"github.com/getpaseo/paseo/pkg/paseo"
)

// fakeStream is a controllable provider.EventStream for tests.
type fakeStream struct {
	events chan provider.StreamEvent
	err    error
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan provider.StreamEvent, 16)}
}

func (f *fakeStream) Events() <-chan provider.StreamEvent { return f.events }
func (f *fakeStream) Err() error                          { return f.err }
func (f *fakeStream) Close() error                        { close(f.events); return nil }

// fakeAdapter is a provider.Adapter double that hands back a fakeStream and
// records every call it receives.
type fakeAdapter struct {
	name paseo.Provider

	startErr error
	stream   *fakeStream

	sent     []paseo.OutgoingMessage
	canceled int
	closed   int
}

func newFakeAdapter(name paseo.Provider) *fakeAdapter {
	return &fakeAdapter{name: name, stream: newFakeStream()}
}

func (a *fakeAdapter) Name() paseo.Provider { return a.name }

func (a *fakeAdapter) Start(ctx context.Context, config paseo.CreateAgentConfig) (provider.SessionHandle, provider.EventStream, error) {
	if a.startErr != nil {
		return nil, nil, a.startErr
	}
	return "session-1", a.stream, nil
}

func (a *fakeAdapter) Resume(ctx context.Context, handle *paseo.PersistenceHandle, overrides paseo.ResumeOverrides) (provider.SessionHandle, provider.EventStream, error) {
	return a.Start(ctx, paseo.CreateAgentConfig{})
}

func (a *fakeAdapter) Send(ctx context.Context, session provider.SessionHandle, msg paseo.OutgoingMessage) error {
	a.sent = append(a.sent, msg)
	return nil
}

func (a *fakeAdapter) Cancel(ctx context.Context, session provider.SessionHandle) error {
	a.canceled++
	return nil
}

func (a *fakeAdapter) Close(ctx context.Context, session provider.SessionHandle) error {
	a.closed++
	return nil
}

func (a *fakeAdapter) ListPersisted(ctx context.Context, limit int) ([]paseo.PersistedAgentSummary, error) {
	return nil, nil
}

func newTestManager(t *testing.T, ad *fakeAdapter) *Manager {
	t.Helper()
	reg := provider.NewRegistry()
	reg.Register(ad)
	return NewManager(Options{
		Providers:        reg,
		Store:            registry.NewMemoryStore(),
		AdapterStartTime: time.Second,
		DrainTimeout:     time.Second,
	})
}

// waitForStatus polls ListAgents until agentID reaches want or the deadline
// passes; manager transitions happen off the calling goroutine (startProvider
// runs in its own goroutine, and the pump reacts to channel sends).
func waitForStatus(t *testing.T, m *Manager, agentID string, want paseo.AgentStatus) *paseo.Agent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, a := range m.ListAgents() {
			if a.ID == agentID && a.Status == want {
				return a
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("agent %s never reached status %s", agentID, want)
	return nil
}

func TestCreateAgentReachesIdle(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	agent, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
		Cwd:      "/tmp/work",
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if agent.Status != paseo.StatusInitializing {
		t.Fatalf("expected initializing, got %s", agent.Status)
	}

	waitForStatus(t, m, agent.ID, paseo.StatusIdle)
}

func TestCreateAgentRejectsUnknownProvider(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	_, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderCodex,
		Cwd:      "/tmp/work",
	})
	if err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestCreateAgentRejectsMissingCwd(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	_, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
	})
	if err == nil {
		t.Fatal("expected error for empty cwd")
	}
}

func TestCreateAgentRejectsBadWorktreeName(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	_, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider:     paseo.ProviderClaude,
		Cwd:          "/tmp/work",
		WorktreeName: "Not Valid!",
	})
	if err == nil {
		t.Fatal("expected error for invalid worktree name")
	}
}

func TestSendMessageDrivesRunningThenIdle(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	agent, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
		Cwd:      "/tmp/work",
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusIdle)

	sub := m.Subscribe(Filter{AgentID: agent.ID})
	defer sub.Unsubscribe()

	if err := m.SendMessage(context.Background(), agent.ID, paseo.OutgoingMessage{Text: "hello"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusRunning)

	if len(ad.sent) != 1 || ad.sent[0].Text != "hello" {
		t.Fatalf("expected adapter to receive the message, got %+v", ad.sent)
	}

	ad.stream.events <- provider.StreamEvent{
		Provider: string(paseo.ProviderClaude),
		Type:     "timeline",
		Item:     map[string]any{"type": "turn_complete"},
	}
	waitForStatus(t, m, agent.ID, paseo.StatusIdle)
}

func TestSendMessageDeduplicatesClientMessageID(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	agent, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
		Cwd:      "/tmp/work",
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusIdle)

	msg := paseo.OutgoingMessage{Text: "hi", ClientMessageID: "dup-1"}
	if err := m.SendMessage(context.Background(), agent.ID, msg); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusRunning)

	if err := m.SendMessage(context.Background(), agent.ID, msg); err != nil {
		t.Fatalf("SendMessage (dup): %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if len(ad.sent) != 1 {
		t.Fatalf("expected exactly one adapter.Send call, got %d", len(ad.sent))
	}
}

func TestSendMessageQueuesWhileRunningAndDrainsOnIdle(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	agent, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
		Cwd:      "/tmp/work",
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusIdle)

	if err := m.SendMessage(context.Background(), agent.ID, paseo.OutgoingMessage{Text: "first"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusRunning)

	if err := m.SendMessage(context.Background(), agent.ID, paseo.OutgoingMessage{Text: "second"}); err != nil {
		t.Fatalf("SendMessage (queued): %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if len(ad.sent) != 1 {
		t.Fatalf("expected the second message to queue, not send immediately, got %d sends", len(ad.sent))
	}

	ad.stream.events <- provider.StreamEvent{
		Provider: string(paseo.ProviderClaude),
		Type:     "timeline",
		Item:     map[string]any{"type": "turn_complete"},
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(ad.sent) < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(ad.sent) != 2 || ad.sent[1].Text != "second" {
		t.Fatalf("expected the queued message to be sent after turn completion, got %+v", ad.sent)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusRunning)
}

func TestCancelAgentForcesIdleWhenAdapterDoesNotSettle(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	agent, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
		Cwd:      "/tmp/work",
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusIdle)

	if err := m.SendMessage(context.Background(), agent.ID, paseo.OutgoingMessage{Text: "go"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusRunning)

	if err := m.CancelAgent(context.Background(), agent.ID); err != nil {
		t.Fatalf("CancelAgent: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusInterrupting)
	if ad.canceled != 1 {
		t.Fatalf("expected adapter.Cancel to be called once, got %d", ad.canceled)
	}

	// defaultCancelSettle is 10s; the adapter never reports settled, so the
	// manager's own forced-idle timer is what we're really exercising here.
	// Give it generous headroom above defaultCancelSettle.
	deadline := time.Now().Add(12 * time.Second)
	var last paseo.AgentStatus
	for time.Now().Before(deadline) {
		for _, a := range m.ListAgents() {
			if a.ID == agent.ID {
				last = a.Status
			}
		}
		if last == paseo.StatusIdle {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected forced idle after cancel settle timeout, last status %s", last)
}

func TestDeleteAgentRemovesAndPublishesRemoval(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	agent, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
		Cwd:      "/tmp/work",
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusIdle)

	sub := m.Subscribe(Filter{AgentID: agent.ID})
	defer sub.Unsubscribe()

	if err := m.DeleteAgent(context.Background(), agent.ID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}

	if _, err := m.lookup(agent.ID); err == nil {
		t.Fatal("expected lookup to fail after delete")
	}

	found := false
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !found {
		select {
		case ev := <-sub.Events():
			if ev.Removed {
				found = true
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !found {
		t.Fatal("expected a removal event on the subscription")
	}
}

func TestSubscribeFilterAllReceivesEveryAgent(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	sub := m.Subscribe(Filter{All: true})
	defer sub.Unsubscribe()

	agent, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
		Cwd:      "/tmp/work",
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusIdle)

	sawSnapshot := false
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !sawSnapshot {
		select {
		case ev := <-sub.Events():
			if ev.Agent != nil && ev.AgentID == agent.ID {
				sawSnapshot = true
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !sawSnapshot {
		t.Fatal("expected an all-agents subscription to see this agent's snapshots")
	}
}

func TestShutdownClosesAllAgents(t *testing.T) {
	ad := newFakeAdapter(paseo.ProviderClaude)
	m := newTestManager(t, ad)

	agent, err := m.CreateAgent(context.Background(), paseo.CreateAgentConfig{
		Provider: paseo.ProviderClaude,
		Cwd:      "/tmp/work",
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	waitForStatus(t, m, agent.ID, paseo.StatusIdle)

	m.Shutdown(context.Background())

	if ad.closed == 0 {
		t.Fatal("expected Shutdown to close the adapter session")
	}
}
