package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ingestion pipeline.
type Metrics struct {
	CyclesTotal        prometheus.Counter
	CycleDuration      prometheus.Histogram
	ItemsProcessed     *prometheus.CounterVec
	EnrichmentFailures prometheus.Counter
}

// New registers all pipeline metrics with the given registerer. A nil
// registerer falls back to the default one; tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "billscan_cycles_total",
			Help: "Total number of completed ingestion cycles",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "billscan_cycle_duration_seconds",
			Help:    "Duration of one full ingestion cycle",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
		ItemsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "billscan_items_processed_total",
			Help: "Processed items by target kind and outcome",
		}, []string{"kind", "outcome"}),
		EnrichmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "billscan_enrichment_failures_total",
			Help: "Total number of failed enrichment calls",
		}),
	}
}

// ObserveCycle records one finished cycle and its duration.
func (m *Metrics) ObserveCycle(start time.Time) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(time.Since(start).Seconds())
}

// RecordItem counts a per-item outcome ("processed", "skipped", "error").
func (m *Metrics) RecordItem(kind, outcome string) {
	m.ItemsProcessed.WithLabelValues(kind, outcome).Inc()
}

// RecordEnrichmentFailure counts a failed enrichment call.
func (m *Metrics) RecordEnrichmentFailure() {
	m.EnrichmentFailures.Inc()
}
