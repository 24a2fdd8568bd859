package agent

import (
	"context"
	"testing"
	"time"

	"github.com/getpaseo/paseo/internal/registry"
	"github.com/getpaseo/paseo/pkg/paseo"
)

func TestReconcilerRegistryGCPurgesOldEndedRecords(t *testing.T) {
	store := registry.NewMemoryStore()
	ctx := context.Background()

	old := &paseo.Agent{ID: "old", Status: paseo.StatusEnded, LastActivityAt: time.Now().Add(-48 * time.Hour)}
	recent := &paseo.Agent{ID: "recent", Status: paseo.StatusEnded, LastActivityAt: time.Now()}
	live := &paseo.Agent{ID: "live", Status: paseo.StatusRunning, LastActivityAt: time.Now().Add(-48 * time.Hour)}
	for _, a := range []*paseo.Agent{old, recent, live} {
		if err := store.ApplySnapshot(ctx, a, a.LastActivityAt); err != nil {
			t.Fatalf("seed ApplySnapshot(%s): %v", a.ID, err)
		}
	}

	r := NewReconciler(store, nil, ReconcilerConfig{RegistryRetention: 24 * time.Hour})
	r.runRegistryGC()

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	ids := map[string]bool{}
	for _, a := range remaining {
		ids[a.ID] = true
	}
	if ids["old"] {
		t.Fatalf("expected old ended record purged, still present")
	}
	if !ids["recent"] || !ids["live"] {
		t.Fatalf("expected recent and live records kept, got %v", ids)
	}
}

func TestReconcilerPidLockGCInvokesConfiguredSweep(t *testing.T) {
	called := false
	var gotHome string
	gc := func(home string) ([]string, error) {
		called = true
		gotHome = home
		return []string{"stale.pid"}, nil
	}

	r := NewReconciler(nil, gc, ReconcilerConfig{PidLockHome: "/tmp/paseo-home"})
	r.runPidLockGC()

	if !called {
		t.Fatalf("expected configured gc func to be invoked")
	}
	if gotHome != "/tmp/paseo-home" {
		t.Fatalf("expected home passed through, got %q", gotHome)
	}
}

func TestReconcilerStartSkipsDisabledJobs(t *testing.T) {
	r := NewReconciler(nil, nil, ReconcilerConfig{})
	if err := r.Start(); err != nil {
		t.Fatalf("Start with no store/gc configured: %v", err)
	}
	r.Stop()
}
