package enrich

import (
	"math"

	"github.com/jonreiter/govader"

	"github.com/WessleyAI/pulse/engine/domain"
)

// NeutralBand is the half-width of the neutral label around zero.
const NeutralBand = 0.05

// Scorer returns a compound polarity score in [-1, 1].
type Scorer interface {
	Compound(text string) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(string) float64

func (f ScorerFunc) Compound(text string) float64 { return f(text) }

// VaderScorer scores with the VADER lexicon.
type VaderScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVaderScorer loads the VADER lexicon.
func NewVaderScorer() *VaderScorer {
	return &VaderScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *VaderScorer) Compound(text string) float64 {
	return v.analyzer.PolarityScores(text).Compound
}

// LabelFor maps a compound score in [-1, 1] onto a label. Bins are closed on
// the right: [-1, -0.05] negative, (-0.05, 0.05] neutral, (0.05, 1] positive.
func LabelFor(score float64) domain.Label {
	switch {
	case score <= -NeutralBand:
		return domain.LabelNegative
	case score <= NeutralBand:
		return domain.LabelNeutral
	default:
		return domain.LabelPositive
	}
}

// Labeler scores TextEN and labels each record.
type Labeler struct {
	Scorer Scorer
}

// Apply sets SentimentScore and SentimentLabel on every record in place.
// Empty text scores 0 without consulting the scorer.
func (l *Labeler) Apply(records []domain.Record) {
	for i := range records {
		var score float64
		if records[i].TextEN != "" {
			score = clamp(l.Scorer.Compound(records[i].TextEN))
		}
		records[i].SentimentScore = score
		records[i].SentimentLabel = LabelFor(score)
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, -1), 1)
}

// Summary aggregates sentiment over a record set.
type Summary struct {
	Total  int                  `json:"total"`
	Counts map[domain.Label]int `json:"counts"`
	Mean   float64              `json:"mean"`
}

// Summarize counts labels and averages scores. An empty set has mean 0.
func Summarize(records []domain.Record) Summary {
	s := Summary{Total: len(records), Counts: make(map[domain.Label]int, len(domain.Labels))}
	for _, l := range domain.Labels {
		s.Counts[l] = 0
	}
	var sum float64
	for _, r := range records {
		s.Counts[r.SentimentLabel]++
		sum += r.SentimentScore
	}
	if s.Total > 0 {
		s.Mean = sum / float64(s.Total)
	}
	return s
}
