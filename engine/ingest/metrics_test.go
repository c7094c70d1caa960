package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/engine/enrich"
	"github.com/WessleyAI/pulse/pkg/metrics"
)

func TestMetrics_Observe(t *testing.T) {
	reg := metrics.New()
	m := NewMetrics(reg)

	m.Observe(RunReport{
		Collected:  map[domain.Source]int{domain.SourceReddit: 4, domain.SourceMastodon: 2},
		Translated: 1,
		Affected:   5,
		Duration:   time.Second,
		Sentiment: enrich.Summary{
			Total:  5,
			Counts: map[domain.Label]int{domain.LabelPositive: 3, domain.LabelNeutral: 2, domain.LabelNegative: 0},
			Mean:   0.5,
		},
	})
	m.Observe(RunReport{Err: "translate: boom"})

	out := reg.Render()
	for _, want := range []string{
		"pulse_runs_total 2",
		"pulse_run_failures_total 1",
		`pulse_records_collected_total{source="reddit"} 4`,
		`pulse_records_collected_total{source="mastodon"} 2`,
		"pulse_records_translated_total 1",
		"pulse_records_stored_total 5",
		`pulse_records_labeled_total{label="positive"} 3`,
		"pulse_last_run_mean_sentiment 0.5",
		"pulse_run_duration_seconds_count 2",
	} {
		assert.True(t, strings.Contains(out, want), "missing %q in\n%s", want, out)
	}
}
