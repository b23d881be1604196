package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query kinds used as the "query" label.
const (
	QueryDay    = "day"
	QueryRecent = "recent"
)

// Metrics provides observability for history reads and ingestion.
type Metrics struct {
	// Store read latency by query kind
	QueryLatency *prometheus.HistogramVec

	// Read failures by query kind and error code
	QueryFailures *prometheus.CounterVec

	// Entries returned per query
	EntriesReturned *prometheus.HistogramVec

	// Ingest requests accepted or rejected
	IngestRequests *prometheus.CounterVec
}

// New registers the history metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		QueryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labtrail_history_query_duration_seconds",
			Help:    "Duration of audit store reads by query kind",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"query"}),

		QueryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "labtrail_history_query_failures_total",
			Help: "Audit store reads that failed, by query kind and error code",
		}, []string{"query", "code"}),

		EntriesReturned: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labtrail_history_entries_returned",
			Help:    "Number of entries returned per query",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"query"}),

		IngestRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "labtrail_history_ingest_requests_total",
			Help: "Ingest requests by outcome",
		}, []string{"outcome"}), // outcome: "accepted", "rejected"
	}
}

// ObserveQuery records a read's latency and, on failure, its error code.
func (m *Metrics) ObserveQuery(query string, d time.Duration, code string) {
	if m == nil {
		return
	}
	m.QueryLatency.WithLabelValues(query).Observe(d.Seconds())
	if code != "" {
		m.QueryFailures.WithLabelValues(query, code).Inc()
	}
}

// ObserveEntries records how many entries a query returned.
func (m *Metrics) ObserveEntries(query string, n int) {
	if m != nil {
		m.EntriesReturned.WithLabelValues(query).Observe(float64(n))
	}
}

// IncIngest counts one ingest request.
func (m *Metrics) IncIngest(accepted bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.IngestRequests.WithLabelValues(outcome).Inc()
}
