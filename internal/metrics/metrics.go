// Package metrics exports Prometheus metrics about import batches.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvloznov/ledger-import/internal/importer"
)

const namespace = "ledger_import"

// Recorder implements importer.Observer.
type Recorder struct {
	batches      *prometheus.CounterVec
	records      *prometheus.CounterVec
	transactions *prometheus.CounterVec
	ordersHeld   *prometheus.CounterVec
	warnings     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
}

// NewRecorder registers the import metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "total",
			Help:      "Import batches by source and result (committed or failed).",
		}, []string{"source", "result"}),

		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "total",
			Help:      "Imported records by source and outcome.",
		}, []string{"source", "outcome"}),

		transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Ledger transactions written by change kind.",
		}, []string{"source", "change"}),

		ordersHeld: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "held_total",
			Help:      "Orders held back because a shipment had not been dispatched.",
		}, []string{"source"}),

		warnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "warnings_total",
			Help:      "Merges flagged for manual review.",
		}, []string{"source"}),

		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Wall time of one import batch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),

		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "queue_depth",
			Help:      "Import jobs waiting for the worker.",
		}),
	}
}

// ObserveBatch implements importer.Observer. summary is nil when the batch
// failed.
func (r *Recorder) ObserveBatch(source string, summary *importer.Summary, err error, elapsed time.Duration) {
	r.duration.WithLabelValues(source).Observe(elapsed.Seconds())
	if err != nil || summary == nil {
		r.batches.WithLabelValues(source, "failed").Inc()
		return
	}
	r.batches.WithLabelValues(source, "committed").Inc()

	for outcome, n := range map[string]int{
		"imported":  summary.Imported,
		"merged":    summary.Merged,
		"replaced":  summary.Replaced,
		"explained": summary.Explained,
		"flagged":   summary.Flagged,
		"duplicate": summary.Duplicates,
		"skipped":   summary.Skipped,
	} {
		if n > 0 {
			r.records.WithLabelValues(source, outcome).Add(float64(n))
		}
	}
	for change, n := range map[string]int{
		"created": summary.Created,
		"updated": summary.Updated,
		"deleted": summary.Deleted,
	} {
		if n > 0 {
			r.transactions.WithLabelValues(source, change).Add(float64(n))
		}
	}
	if len(summary.Held) > 0 {
		r.ordersHeld.WithLabelValues(source).Add(float64(len(summary.Held)))
	}
	if len(summary.Warnings) > 0 {
		r.warnings.WithLabelValues(source).Add(float64(len(summary.Warnings)))
	}
}

// SetQueueDepth reports how many jobs are waiting.
func (r *Recorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ importer.Observer = (*Recorder)(nil)
