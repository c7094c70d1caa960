package ingest

import (
	"time"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/engine/enrich"
)

// RunReport describes one pipeline run.
type RunReport struct {
	RunID      string                `json:"run_id"`
	Keyword    string                `json:"keyword"`
	Sources    []domain.Source       `json:"sources"`
	Collected  map[domain.Source]int `json:"collected"`
	Unique     int                   `json:"unique"`
	Translated int                   `json:"translated"`
	Sentiment  enrich.Summary        `json:"sentiment"`
	Affected   int64                 `json:"affected"`
	StartedAt  time.Time             `json:"started_at"`
	Duration   time.Duration         `json:"duration_ns"`
	Err        string                `json:"error,omitempty"`
}

// OK reports whether the run finished without error.
func (r RunReport) OK() bool { return r.Err == "" }

// Run converts the report into a run log entry.
func (r RunReport) Run() domain.Run {
	return domain.Run{
		ID:         r.RunID,
		Keyword:    r.Keyword,
		Sources:    r.Sources,
		Affected:   r.Affected,
		StartedAt:  r.StartedAt,
		FinishedAt: r.StartedAt.Add(r.Duration),
		Err:        r.Err,
	}
}
