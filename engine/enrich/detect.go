package enrich

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/WessleyAI/pulse/engine/domain"
)

// Detector guesses the language of a text. It returns an ISO 639-1 code when
// one exists, otherwise ISO 639-3, or domain.LangUnknown.
type Detector interface {
	Detect(text string) string
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(string) string

func (f DetectorFunc) Detect(text string) string { return f(text) }

// WhatlangDetector detects languages with whatlanggo trigram profiles.
type WhatlangDetector struct{}

func (WhatlangDetector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return domain.LangUnknown
	}
	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return domain.LangUnknown
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	if code := info.Lang.Iso6393(); code != "" {
		return code
	}
	return domain.LangUnknown
}
