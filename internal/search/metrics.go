package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records search activity. A nil *Metrics records nothing.
type Metrics struct {
	units        *prometheus.CounterVec
	unitDuration prometheus.Histogram
	configs      *prometheus.CounterVec
	runs         prometheus.Counter
}

// NewMetrics registers the search collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// units counts (configuration, fold) units by outcome
		units: f.NewCounterVec(prometheus.CounterOpts{
			Name: "segmentgrid_search_units_total",
			Help: "Cross-validation units evaluated, by outcome",
		}, []string{"outcome"}),
		unitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmentgrid_search_unit_duration_seconds",
			Help:    "Fit plus score duration of one cross-validation unit",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}),
		configs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "segmentgrid_search_configurations_total",
			Help: "Configurations aggregated, by status",
		}, []string{"status"}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "segmentgrid_search_runs_total",
			Help: "Completed search runs",
		}),
	}
}

func (m *Metrics) observeUnit(valid bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	m.units.WithLabelValues(outcome).Inc()
	m.unitDuration.Observe(d.Seconds())
}

func (m *Metrics) observeRun(ranked, failed int) {
	if m == nil {
		return
	}
	m.configs.WithLabelValues("ranked").Add(float64(ranked))
	m.configs.WithLabelValues("failed").Add(float64(failed))
	m.runs.Inc()
}
