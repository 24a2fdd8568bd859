package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// MemoryStore is an in-memory Store implementation for tests and single-run
// daemons that don't need durability across restarts.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*paseo.Agent
	updatedAt map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   map[string]*paseo.Agent{},
		updatedAt: map[string]time.Time{},
	}
}

func (m *MemoryStore) ApplySnapshot(ctx context.Context, agent *paseo.Agent, updatedAt time.Time) error {
	if agent == nil || agent.ID == "" {
		return storeError("registry: agent id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.updatedAt[agent.ID]; ok && !updatedAt.After(existing) {
		return ErrStale
	}
	m.records[agent.ID] = agent.Clone()
	m.updatedAt[agent.ID] = updatedAt
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*paseo.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return agent.Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*paseo.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*paseo.Agent, 0, len(m.records))
	for _, agent := range m.records {
		out = append(out, agent.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	delete(m.updatedAt, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
