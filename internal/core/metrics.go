package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters of one import run on a private registry, so a
// run can be exported as a node-exporter textfile. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	rowsTotal     *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	stageDuration *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
}

// NewMetrics registers the importer metrics on a new registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		rowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufimport",
			Name:      "rows_total",
			Help:      "Source rows by stage and outcome (stored, failed, dropped, duplicate).",
		}, []string{"stage", "outcome"}),
		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufimport",
			Name:      "row_failures_total",
			Help:      "Rejected rows by stage and classification.",
		}, []string{"stage", "class"}),
		stageDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ufimport",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of the last run of each stage.",
		}, []string{"stage"}),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ufimport",
			Name:      "last_run_timestamp_seconds",
			Help:      "Completion time of the last run by status.",
		}, []string{"status"}),
	}
}

// Registry exposes the registry for scraping or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage adds a finished stage to the counters.
func (m *Metrics) ObserveStage(res *StageResult) {
	if m == nil || res == nil {
		return
	}
	m.rowsTotal.WithLabelValues(res.Stage, "stored").Add(float64(max(res.Stored, 0)))
	m.rowsTotal.WithLabelValues(res.Stage, "failed").Add(float64(res.Failed()))
	m.rowsTotal.WithLabelValues(res.Stage, "dropped").Add(float64(res.Dropped))
	m.rowsTotal.WithLabelValues(res.Stage, "duplicate").Add(float64(res.Duplicates))
	for kind, n := range res.Failures {
		m.failuresTotal.WithLabelValues(res.Stage, string(kind)).Add(float64(n))
	}
	m.stageDuration.WithLabelValues(res.Stage).Set(res.Duration.Seconds())
}

// ObserveRun records the run completion time.
func (m *Metrics) ObserveRun(s *Summary) {
	if m == nil || s == nil {
		return
	}
	m.lastRun.WithLabelValues(s.Status()).Set(float64(s.FinishedAt.Unix()))
}

// WriteTextfile writes the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
