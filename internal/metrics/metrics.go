// Package metrics holds the Prometheus instruments of the import pipeline
// and the exchange engine. A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wfm"

// Metrics instruments.
type Metrics struct {
	importRows         *prometheus.CounterVec
	importRuns         *prometheus.CounterVec
	importChunkLatency prometheus.Histogram
	vocabularyWarnings *prometheus.CounterVec
	identitiesCreated  prometheus.Counter

	exchangeTotal    *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Imported rows by outcome.",
		}, []string{"outcome"}),
		importRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Import runs by result.",
		}, []string{"result"}),
		importChunkLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "chunk_flush_seconds",
			Help:      "Latency of one chunk transaction.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		vocabularyWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "vocabulary_fallbacks_total",
			Help:      "Direction or status labels that fell back to a default.",
		}, []string{"kind"}),
		identitiesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "identities_created_total",
			Help:      "Identities provisioned by imports.",
		}),
		exchangeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "proposals_total",
			Help:      "Exchange proposals by outcome (approved, a rejection reason, or error).",
		}, []string{"outcome"}),
		exchangeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "duration_seconds",
			Help:      "Exchange proposal latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"outcome"}),
	}
}

// Row outcomes.
const (
	RowCreated            = "created"
	RowSkippedNoIdentity  = "skipped_no_identity"
	RowSkippedBadInterval = "skipped_bad_interval"
	RowSkippedDuplicate   = "skipped_duplicate"
	RowSkippedInvalid     = "skipped_invalid"
	RowFailed             = "failed"
)

func (m *Metrics) ImportRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importRows.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) ImportRun(result string) {
	if m == nil {
		return
	}
	m.importRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) ImportChunk(d time.Duration) {
	if m == nil {
		return
	}
	m.importChunkLatency.Observe(d.Seconds())
}

func (m *Metrics) VocabularyFallback(kind string) {
	if m == nil {
		return
	}
	m.vocabularyWarnings.WithLabelValues(kind).Inc()
}

func (m *Metrics) IdentitiesCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.identitiesCreated.Add(float64(n))
}

func (m *Metrics) Exchange(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.exchangeTotal.WithLabelValues(outcome).Inc()
	m.exchangeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
