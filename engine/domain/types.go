// Package domain defines the record model shared by collectors, enrichment,
// storage and the ingest pipeline. Validate acts as the gate before anything
// is persisted.
package domain

import (
	"encoding/json"
	"time"
)

// Source identifies the platform a record was fetched from.
type Source string

const (
	SourceMastodon Source = "mastodon"
	SourceReddit   Source = "reddit"
)

// ValidSources is the set of recognised sources.
var ValidSources = map[Source]bool{
	SourceMastodon: true,
	SourceReddit:   true,
}

// Language tags produced by detection.
const (
	LangEnglish = "en"
	LangUnknown = "unknown"
)

// DeletedAuthor is the author placeholder for removed accounts.
const DeletedAuthor = "[deleted]"

// Label is the sentiment class derived from a compound score.
type Label string

const (
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
	LabelPositive Label = "positive"
)

// Labels lists every label in display order.
var Labels = []Label{LabelPositive, LabelNeutral, LabelNegative}

// Record is one post normalized across sources. The fields above the blank
// line are persisted; the rest are filled in during enrichment.
type Record struct {
	ID         string          `json:"id"`
	Source     Source          `json:"source"`
	Author     string          `json:"author"`
	Text       string          `json:"text"`
	CreatedUTC string          `json:"created_utc"`
	URL        string          `json:"url,omitempty"`
	Keyword    string          `json:"keyword"`
	Score      int             `json:"score"`
	Extras     json.RawMessage `json:"extras,omitempty"`

	Lang           string  `json:"lang,omitempty"`
	TextEN         string  `json:"text_en,omitempty"`
	SentimentScore float64 `json:"sentiment_score"`
	SentimentLabel Label   `json:"sentiment_label,omitempty"`
}

// Run is one entry in the ingest run log.
type Run struct {
	ID         string    `json:"id"`
	Keyword    string    `json:"keyword"`
	Sources    []Source  `json:"sources"`
	Affected   int64     `json:"affected"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Err        string    `json:"error,omitempty"`
}
