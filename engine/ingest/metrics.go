package ingest

import (
	"github.com/WessleyAI/pulse/pkg/metrics"
)

// Metrics is an Observer that exports run reports to a registry.
type Metrics struct {
	reg *metrics.Registry
}

// NewMetrics registers the pipeline metrics on reg.
func NewMetrics(reg *metrics.Registry) *Metrics {
	reg.Counter("pulse_runs_total", "Pipeline runs")
	reg.Counter("pulse_run_failures_total", "Pipeline runs that returned an error")
	return &Metrics{reg: reg}
}

// Observe implements Observer.
func (m *Metrics) Observe(rep RunReport) {
	m.reg.Counter("pulse_runs_total", "").Inc()
	m.reg.Histogram("pulse_run_duration_seconds", "Pipeline run latency", nil).Observe(rep.Duration.Seconds())
	if !rep.OK() {
		m.reg.Counter("pulse_run_failures_total", "").Inc()
		return
	}
	for src, n := range rep.Collected {
		m.reg.Counter(metrics.WithLabels("pulse_records_collected_total", "source", string(src)), "Records returned by collectors").Add(int64(n))
	}
	m.reg.Counter("pulse_records_translated_total", "Records sent to the translator").Add(int64(rep.Translated))
	m.reg.Counter("pulse_records_stored_total", "Rows written by the store").Add(rep.Affected)
	for label, n := range rep.Sentiment.Counts {
		m.reg.Counter(metrics.WithLabels("pulse_records_labeled_total", "label", string(label)), "Records per sentiment label").Add(int64(n))
	}
	if rep.Sentiment.Total > 0 {
		m.reg.Gauge("pulse_last_run_mean_sentiment", "Mean compound score of the last non-empty run").Set(rep.Sentiment.Mean)
	}
}
