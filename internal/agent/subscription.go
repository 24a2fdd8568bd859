package agent

import (
	"strconv"
	"sync"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// defaultSubscriptionBuffer is the bounded queue size per subscriber
// (spec §3, Subscription).
const defaultSubscriptionBuffer = 1024

// StreamEvent is one published occurrence a Subscription's channel carries:
// either a timeline StreamItem, a status/agent snapshot update, or a
// removal notice.
type StreamEvent struct {
	AgentID string
	Item    *paseo.StreamItem
	Agent   *paseo.Agent // non-nil on agent_upsert-equivalent snapshot pushes
	Removed bool
}

// Filter selects which agents a Subscription receives events for.
type Filter struct {
	AgentID string
	All     bool
}

func (f Filter) matches(agentID string) bool {
	return f.All || f.AgentID == agentID
}

// Subscription is a typed, bounded channel scoped to one agent or to all
// agents (spec §3, §4.1 subscribe).
type Subscription struct {
	ID     string
	Filter Filter

	events chan StreamEvent
	lagged bool
	mu     sync.Mutex
	closed bool
	onClose func(*Subscription)
}

// Events returns the channel to range over for published events. It closes
// when Unsubscribe is called.
func (s *Subscription) Events() <-chan StreamEvent { return s.events }

// Lagged reports whether this subscription's queue has overflowed and been
// resynced since the last check.
func (s *Subscription) Lagged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.lagged
	s.lagged = false
	return v
}

// Unsubscribe detaches the subscription from its publisher and closes its
// channel. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose(s)
	}
	close(s.events)
}

// publish delivers ev to s without blocking. On overflow it marks the
// subscription lagged and signals the caller to resend a resync snapshot
// (spec §4.4 fan-out & back-pressure: "no message is ever silently dropped
// without a resync").
func (s *Subscription) publish(ev StreamEvent) (overflowed bool) {
	select {
	case s.events <- ev:
		return false
	default:
		s.mu.Lock()
		s.lagged = true
		s.mu.Unlock()
		return true
	}
}

// subscriberRegistry is the copy-on-write subscriber registry a Manager publishes through.
// Mirrors the gateway's broadcast manager's subscriber bookkeeping, scoped
// here to one Agent Manager instance rather than a channel adapter.
type subscriberRegistry struct {
	mu   sync.Mutex
	subs []*Subscription
	next int
}

func newSubscriberRegistry() *subscriberRegistry {
	return &subscriberRegistry{}
}

func (r *subscriberRegistry) add(filter Filter) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	sub := &Subscription{
		ID:     generateSubscriptionID(r.next),
		Filter: filter,
		events: make(chan StreamEvent, defaultSubscriptionBuffer),
	}
	sub.onClose = r.remove

	next := make([]*Subscription, len(r.subs), len(r.subs)+1)
	copy(next, r.subs)
	r.subs = append(next, sub)
	return sub
}

func (r *subscriberRegistry) remove(target *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if s != target {
			next = append(next, s)
		}
	}
	r.subs = next
}

// publish fans ev out to every subscriber whose filter matches agentID,
// returning the subscriptions that overflowed so the Manager can count
// them. Each overflowed subscription is marked lagged; its consumer sends
// the resync snapshot after seeing Lagged() (spec §4.4).
func (r *subscriberRegistry) publish(agentID string, ev StreamEvent) []*Subscription {
	r.mu.Lock()
	subs := r.subs
	r.mu.Unlock()

	var overflowed []*Subscription
	for _, s := range subs {
		if !s.Filter.matches(agentID) {
			continue
		}
		if s.publish(ev) {
			overflowed = append(overflowed, s)
		}
	}
	return overflowed
}

func generateSubscriptionID(n int) string {
	return "sub-" + strconv.Itoa(n)
}
