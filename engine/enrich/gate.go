// Package enrich adds language, English text and sentiment to collected
// records.
package enrich

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/pkg/fn"
)

// DefaultMinChars is the shortest text worth translating.
const DefaultMinChars = 15

var urlOnly = regexp.MustCompile(`(?i)^\s*https?://`)

// Translator turns a batch of texts into English. The result must have the
// same length and order as the input.
type Translator interface {
	Translate(ctx context.Context, texts []string) ([]string, error)
}

// Gate detects each record's language and sends the ones worth it to the
// translator as a single batch. A nil Translator disables translation.
type Gate struct {
	Detector   Detector
	Translator Translator
	MinChars   int
}

func (g *Gate) detector() Detector {
	if g.Detector == nil {
		return WhatlangDetector{}
	}
	return g.Detector
}

func (g *Gate) minChars() int {
	if g.MinChars <= 0 {
		return DefaultMinChars
	}
	return g.MinChars
}

// NeedsTranslation reports whether text in lang should be translated.
func NeedsTranslation(text, lang string, minChars int) bool {
	if lang == domain.LangEnglish || lang == domain.LangUnknown || lang == "" {
		return false
	}
	if utf8.RuneCountInString(text) < minChars {
		return false
	}
	return !urlOnly.MatchString(text)
}

// Select returns the indexes of records that need translation. Records must
// already carry Lang.
func (g *Gate) Select(records []domain.Record) []int {
	minLen := g.minChars()
	var idx []int
	for i, r := range records {
		if NeedsTranslation(r.Text, r.Lang, minLen) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Apply sets Lang and TextEN on every record in place and returns how many
// were translated. Translator failures wrap domain.ErrTranslation.
func (g *Gate) Apply(ctx context.Context, records []domain.Record) (int, error) {
	det := g.detector()
	for i := range records {
		records[i].Lang = det.Detect(records[i].Text)
		records[i].TextEN = records[i].Text
	}
	if g.Translator == nil {
		return 0, nil
	}

	idx := g.Select(records)
	if len(idx) == 0 {
		return 0, nil
	}
	texts := fn.Map(idx, func(i int) string { return records[i].Text })

	out, err := g.Translator.Translate(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrTranslation, err)
	}
	if len(out) != len(texts) {
		return 0, fmt.Errorf("%w: got %d results for %d texts", domain.ErrTranslation, len(out), len(texts))
	}
	for j, i := range idx {
		records[i].TextEN = out[j]
	}
	return len(idx), nil
}
