package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
// PROMETHEUS METRICS
// ============================================================================

// Metrics holds the supervisor's instrument set. A nil *Metrics is valid
// and all methods are no-ops on it, mirroring Tracer.
type Metrics struct {
	delegations   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	selections    *prometheus.CounterVec
	fallbacks     prometheus.Counter
	activeStreams prometheus.Gauge
	teamSize      prometheus.Gauge
}

// NewMetrics creates and registers the instrument set on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		delegations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roundtable",
			Name:      "delegations_total",
			Help:      "Delegation attempts by agent and outcome.",
		}, []string{"agent", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roundtable",
			Name:      "delegation_duration_seconds",
			Help:      "End-to-end delegation latency by agent.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roundtable",
			Name:      "selections_total",
			Help:      "Selection decisions by source.",
		}, []string{"source"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roundtable",
			Name:      "delegation_fallbacks_total",
			Help:      "Delegations that used the one-hop fallback.",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roundtable",
			Name:      "active_streams",
			Help:      "Streaming delegations currently in flight.",
		}),
		teamSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roundtable",
			Name:      "team_size",
			Help:      "Number of registered agents.",
		}),
	}
	reg.MustRegister(m.delegations, m.latency, m.selections,
		m.fallbacks, m.activeStreams, m.teamSize)
	return m
}

// ObserveDelegation records one delegation attempt.
func (m *Metrics) ObserveDelegation(agent, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.delegations.WithLabelValues(agent, outcome).Inc()
	m.latency.WithLabelValues(agent).Observe(seconds)
}

// ObserveSelection records one selection decision.
func (m *Metrics) ObserveSelection(source string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(source).Inc()
}

// ObserveFallback records a fallback hop.
func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// StreamStarted and StreamEnded track in-flight streams.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamEnded() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

// SetTeamSize records the current registry size.
func (m *Metrics) SetTeamSize(n int) {
	if m == nil {
		return
	}
	m.teamSize.Set(float64(n))
}
