package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus collectors for the admission core.
// All methods are safe on a nil receiver, so metrics can be disabled by
// simply not providing them.
type Metrics struct {
	checks            *prometheus.CounterVec
	blocked           *prometheus.CounterVec
	checkDuration     *prometheus.HistogramVec
	trackedIdentities prometheus.Gauge
	evictions         prometheus.Counter
}

// NewMetrics creates admission metrics registered with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_admission_checks_total",
				Help: "Total number of admission checks performed",
			},
			[]string{"algorithm", "result"},
		),

		blocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_admission_blocked_total",
				Help: "Total number of blocked admission decisions",
			},
			[]string{"algorithm"},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_admission_check_duration_seconds",
				Help:    "Duration of admission checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"algorithm"},
		),

		trackedIdentities: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_admission_tracked_identities",
				Help: "Current number of tracked per-identity states",
			},
		),

		evictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_admission_evictions_total",
				Help: "Total number of idle identity states evicted",
			},
		),
	}
}

// RecordCheck records an admission check and its outcome.
func (m *Metrics) RecordCheck(algorithm string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "blocked"
		m.blocked.WithLabelValues(algorithm).Inc()
	}
	m.checks.WithLabelValues(algorithm, result).Inc()
}

// ObserveCheckDuration records how long a check took.
func (m *Metrics) ObserveCheckDuration(algorithm string, seconds float64) {
	if m == nil {
		return
	}
	m.checkDuration.WithLabelValues(algorithm).Observe(seconds)
}

// SetTrackedIdentities updates the tracked-state gauge.
func (m *Metrics) SetTrackedIdentities(n int) {
	if m == nil {
		return
	}
	m.trackedIdentities.Set(float64(n))
}

// AddEvictions adds to the eviction counter.
func (m *Metrics) AddEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}
