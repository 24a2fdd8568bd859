// Package metrics exposes the daemon's Prometheus metrics: agent lifecycle
// state transitions, subscriber backpressure, and live connection counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized collection of the daemon's Prometheus
// instruments. Construct one with NewMetrics at startup and pass it to
// the components that record against it.
type Metrics struct {
	// AgentTransitions counts agent status transitions.
	// Labels: provider, from, to
	AgentTransitions *prometheus.CounterVec

	// AgentsActive is a gauge of non-terminal agents by provider.
	AgentsActive *prometheus.GaugeVec

	// ProviderStartDuration measures how long a provider adapter's Start
	// takes to return a usable session.
	// Labels: provider
	ProviderStartDuration *prometheus.HistogramVec

	// ProviderStartErrors counts failed provider starts.
	// Labels: provider
	ProviderStartErrors *prometheus.CounterVec

	// SubscriberLagged counts subscriptions that overflowed their bounded
	// queue and were forced into a resync.
	SubscriberLagged prometheus.Counter

	// HubConnections is a gauge of live WebSocket connections.
	HubConnections prometheus.Gauge

	// AttentionPushes counts attention_required frames sent. The rule label
	// is always "default"; which attention rule fired is not recorded.
	// Labels: rule
	AttentionPushes *prometheus.CounterVec

	// RegistryGCPurged counts ended-agent records purged by the
	// reconciler's retention sweep.
	RegistryGCPurged prometheus.Counter

	// PidLockGCRemoved counts stale PID-lock files removed.
	PidLockGCRemoved prometheus.Counter
}

// NewMetrics builds and registers every instrument with the default
// Prometheus registry. Call once at daemon startup.
func NewMetrics() *Metrics {
	return &Metrics{
		AgentTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paseo_agent_transitions_total",
				Help: "Agent status transitions by provider, from-status, and to-status",
			},
			[]string{"provider", "from", "to"},
		),
		AgentsActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paseo_agents_active",
				Help: "Current non-terminal agents by provider",
			},
			[]string{"provider"},
		),
		ProviderStartDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paseo_provider_start_duration_seconds",
				Help:    "Time for a provider adapter's Start/Resume to return a usable session",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		ProviderStartErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paseo_provider_start_errors_total",
				Help: "Failed provider adapter starts by provider",
			},
			[]string{"provider"},
		),
		SubscriberLagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paseo_subscriber_lagged_total",
			Help: "Subscriptions whose bounded queue overflowed and were resynced",
		}),
		HubConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paseo_hub_connections",
			Help: "Current live WebSocket connections",
		}),
		AttentionPushes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paseo_attention_pushes_total",
				Help: "attention_required frames sent (rule label is always \"default\")",
			},
			[]string{"rule"},
		),
		RegistryGCPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paseo_registry_gc_purged_total",
			Help: "Ended agent records purged by the registry retention sweep",
		}),
		PidLockGCRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paseo_pidlock_gc_removed_total",
			Help: "Stale PID-lock files removed by the reconciler",
		}),
	}
}

// RecordTransition increments AgentTransitions and keeps AgentsActive in
// sync: entering a terminal state decrements the gauge, leaving "created"
// for the first time increments it.
func (m *Metrics) RecordTransition(provider, from, to string, terminal bool) {
	m.AgentTransitions.WithLabelValues(provider, from, to).Inc()
	if terminal {
		m.AgentsActive.WithLabelValues(provider).Dec()
	} else if from == "" {
		m.AgentsActive.WithLabelValues(provider).Inc()
	}
}

// RecordProviderStart records a provider Start/Resume's outcome.
func (m *Metrics) RecordProviderStart(provider string, durationSeconds float64, err error) {
	m.ProviderStartDuration.WithLabelValues(provider).Observe(durationSeconds)
	if err != nil {
		m.ProviderStartErrors.WithLabelValues(provider).Inc()
	}
}
