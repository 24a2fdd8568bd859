package registry

import (
	"context"
	"testing"
	"time"

	"github.com/getpaseo/paseo/pkg/paseo"
)

func TestMemoryStoreApplySnapshotAndGet(t *testing.T) {
	store := NewMemoryStore()
	agent := &paseo.Agent{ID: "agent-1", Provider: paseo.ProviderClaude, Cwd: "/tmp", Status: paseo.StatusIdle}

	if err := store.ApplySnapshot(context.Background(), agent, time.Unix(100, 0)); err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}

	loaded, err := store.Get(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Status != paseo.StatusIdle {
		t.Fatalf("expected status idle, got %v", loaded.Status)
	}
}

func TestMemoryStoreRejectsStaleSnapshot(t *testing.T) {
	store := NewMemoryStore()
	agent := &paseo.Agent{ID: "agent-1", Status: paseo.StatusIdle}

	if err := store.ApplySnapshot(context.Background(), agent, time.Unix(200, 0)); err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}

	stale := &paseo.Agent{ID: "agent-1", Status: paseo.StatusRunning}
	if err := store.ApplySnapshot(context.Background(), stale, time.Unix(100, 0)); err != ErrStale {
		t.Fatalf("expected ErrStale, got %v", err)
	}

	loaded, err := store.Get(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Status != paseo.StatusIdle {
		t.Fatalf("expected stale write to be rejected, status = %v", loaded.Status)
	}
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"agent-b", "agent-a"} {
		agent := &paseo.Agent{ID: id, Status: paseo.StatusIdle}
		if err := store.ApplySnapshot(context.Background(), agent, time.Now()); err != nil {
			t.Fatalf("ApplySnapshot(%s) error = %v", id, err)
		}
	}

	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != "agent-a" || all[1].ID != "agent-b" {
		t.Fatalf("expected sorted [agent-a agent-b], got %+v", all)
	}

	if err := store.Delete(context.Background(), "agent-a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "agent-a"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
