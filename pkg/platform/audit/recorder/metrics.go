package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons reported on the dropped counter.
const (
	DropBufferFull  = "buffer_full"
	DropCircuitOpen = "circuit_open"
	DropClosed      = "closed"
)

// Metrics holds Prometheus metrics for the audit recorder. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Recorded            prometheus.Counter
	Dropped             *prometheus.CounterVec
	BuildFailures       prometheus.Counter
	PersistFailures     prometheus.Counter
	PersistDuration     prometheus.Histogram
	CircuitBreakerState prometheus.Gauge
	QueueDepth          prometheus.Gauge
}

// NewMetrics registers the recorder metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Recorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "labtrail_audit_recorded_total",
			Help: "Total number of audit entries persisted",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "labtrail_audit_dropped_total",
			Help: "Total number of audit entries dropped before persistence",
		}, []string{"reason"}),
		BuildFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "labtrail_audit_build_failures_total",
			Help: "Total number of audit entries that could not be built",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "labtrail_audit_persist_failures_total",
			Help: "Total number of audit entry persistence failures",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "labtrail_audit_persist_duration_seconds",
			Help:    "Latency of audit store appends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "labtrail_audit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "labtrail_audit_queue_depth",
			Help: "Audit entries waiting for the background writer",
		}),
	}
}

func (m *Metrics) IncRecorded() {
	if m != nil {
		m.Recorded.Inc()
	}
}

func (m *Metrics) IncDropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncBuildFailures() {
	if m != nil {
		m.BuildFailures.Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	if m != nil {
		m.PersistDuration.Observe(seconds)
	}
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
