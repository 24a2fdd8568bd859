package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers with the default Prometheus registerer, so it's only
// safe to call once per process; these tests exercise the recording logic
// against freestanding instruments instead of calling NewMetrics directly
// (mirrors the teacher's own metrics_test.go for the same reason).

func TestRecordTransitionTracksActiveGauge(t *testing.T) {
	m := &Metrics{
		AgentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "t_transitions"}, []string{"provider", "from", "to"}),
		AgentsActive:     prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "t_active"}, []string{"provider"}),
	}

	m.RecordTransition("claude", "", "initializing", false)
	m.RecordTransition("claude", "initializing", "idle", false)
	if got := testutil.ToFloat64(m.AgentsActive.WithLabelValues("claude")); got != 1 {
		t.Fatalf("AgentsActive after create = %v, want 1", got)
	}

	m.RecordTransition("claude", "idle", "ended", true)
	if got := testutil.ToFloat64(m.AgentsActive.WithLabelValues("claude")); got != 0 {
		t.Fatalf("AgentsActive after terminal = %v, want 0", got)
	}

	if count := testutil.CollectAndCount(m.AgentTransitions); count != 3 {
		t.Fatalf("AgentTransitions label combinations = %d, want 3", count)
	}
}

func TestRecordProviderStartOnlyCountsErrors(t *testing.T) {
	m := &Metrics{
		ProviderStartDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "t_duration"}, []string{"provider"}),
		ProviderStartErrors:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "t_errors"}, []string{"provider"}),
	}

	m.RecordProviderStart("codex", 1.5, nil)
	if got := testutil.ToFloat64(m.ProviderStartErrors.WithLabelValues("codex")); got != 0 {
		t.Fatalf("ProviderStartErrors after success = %v, want 0", got)
	}

	m.RecordProviderStart("codex", 0.2, errors.New("boom"))
	if got := testutil.ToFloat64(m.ProviderStartErrors.WithLabelValues("codex")); got != 1 {
		t.Fatalf("ProviderStartErrors after failure = %v, want 1", got)
	}
}
