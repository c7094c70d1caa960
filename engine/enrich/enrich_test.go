package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/WessleyAI/pulse/engine/domain"
)

var langs = map[string]string{
	"already english text here":           "en",
	"Das Wetter ist heute schön":          "de",
	"court":                               "fr",
	"   https://example.com/article-long": "es",
	"Il fait très beau aujourd'hui":       "fr",
}

// mapDetector looks languages up in langs.
var mapDetector = DetectorFunc(func(text string) string {
	if l, ok := langs[text]; ok {
		return l
	}
	return domain.LangUnknown
})

type fakeTranslator struct {
	calls [][]string
	err   error
	drop  bool
}

func (f *fakeTranslator) Translate(_ context.Context, texts []string) ([]string, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "EN(" + t + ")"
	}
	if f.drop {
		out = out[1:]
	}
	return out, nil
}

func gateRecords() []domain.Record {
	return []domain.Record{
		{ID: "1", Text: "already english text here"},
		{ID: "2", Text: "Das Wetter ist heute schön"},
		{ID: "3", Text: "court"},
		{ID: "4", Text: "   https://example.com/article-long"},
		{ID: "5", Text: "no language marker at all, long enough"},
		{ID: "6", Text: "Il fait très beau aujourd'hui"},
	}
}

func TestNeedsTranslation(t *testing.T) {
	cases := []struct {
		text, lang string
		want       bool
	}{
		{"Das Wetter ist heute schön", "de", true},
		{"hello world, how are you", "en", false},
		{"??????????????????????", "unknown", false},
		{"kurz text!", "de", false},
		{"fünfzehn zeich", "de", false},
		{"fünfzehn zeiche", "de", true},
		{"  HTTPS://example.com/some/long/path", "de", false},
		{"siehe https://example.com/some/long/path", "de", true},
	}
	for _, c := range cases {
		if got := NeedsTranslation(c.text, c.lang, DefaultMinChars); got != c.want {
			t.Errorf("NeedsTranslation(%q, %q): expected %v, got %v", c.text, c.lang, c.want, got)
		}
	}
}

func TestGateApply_TranslatesSelectedInOrder(t *testing.T) {
	tr := &fakeTranslator{}
	g := &Gate{Detector: mapDetector, Translator: tr}
	recs := gateRecords()

	n, err := g.Apply(context.Background(), recs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 translated, got %d", n)
	}
	if len(tr.calls) != 1 {
		t.Fatalf("expected a single batch, got %d calls", len(tr.calls))
	}
	if len(tr.calls[0]) != 2 || tr.calls[0][0] != recs[1].Text || tr.calls[0][1] != recs[5].Text {
		t.Fatalf("unexpected batch %q", tr.calls[0])
	}

	for i, r := range recs {
		if r.ID != gateRecords()[i].ID {
			t.Fatalf("order changed at %d", i)
		}
	}
	if recs[1].TextEN != "EN("+recs[1].Text+")" || recs[5].TextEN != "EN("+recs[5].Text+")" {
		t.Errorf("translations not mapped back: %q %q", recs[1].TextEN, recs[5].TextEN)
	}
	for _, i := range []int{0, 2, 3, 4} {
		if recs[i].TextEN != recs[i].Text {
			t.Errorf("record %s should keep its text, got %q", recs[i].ID, recs[i].TextEN)
		}
	}
	if recs[0].Lang != "en" || recs[4].Lang != domain.LangUnknown {
		t.Errorf("unexpected langs %q %q", recs[0].Lang, recs[4].Lang)
	}
}

func TestGateApply_NothingSelectedSkipsTranslator(t *testing.T) {
	tr := &fakeTranslator{}
	g := &Gate{Detector: mapDetector, Translator: tr}
	recs := []domain.Record{{ID: "1", Text: "already english text here"}}
	n, err := g.Apply(context.Background(), recs)
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil), got (%d, %v)", n, err)
	}
	if len(tr.calls) != 0 {
		t.Fatal("translator must not be called with an empty batch")
	}
}

func TestGateApply_NilTranslator(t *testing.T) {
	g := &Gate{Detector: mapDetector}
	recs := gateRecords()
	n, err := g.Apply(context.Background(), recs)
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil), got (%d, %v)", n, err)
	}
	for _, r := range recs {
		if r.TextEN != r.Text {
			t.Errorf("expected TextEN == Text for %s", r.ID)
		}
	}
}

func TestGateApply_TranslatorError(t *testing.T) {
	g := &Gate{Detector: mapDetector, Translator: &fakeTranslator{err: errors.New("model offline")}}
	_, err := g.Apply(context.Background(), gateRecords())
	if !errors.Is(err, domain.ErrTranslation) {
		t.Fatalf("expected ErrTranslation, got %v", err)
	}
	if !strings.Contains(err.Error(), "model offline") {
		t.Errorf("expected cause in message, got %v", err)
	}
}

func TestGateApply_LengthMismatch(t *testing.T) {
	g := &Gate{Detector: mapDetector, Translator: &fakeTranslator{drop: true}}
	_, err := g.Apply(context.Background(), gateRecords())
	if !errors.Is(err, domain.ErrTranslation) {
		t.Fatalf("expected ErrTranslation, got %v", err)
	}
}

func TestGateSelect_MinChars(t *testing.T) {
	g := &Gate{MinChars: 5}
	recs := []domain.Record{{Text: "hallo", Lang: "de"}, {Text: "hal", Lang: "de"}}
	if idx := g.Select(recs); len(idx) != 1 || idx[0] != 0 {
		t.Fatalf("unexpected selection %v", idx)
	}
}

func TestWhatlangDetector(t *testing.T) {
	d := WhatlangDetector{}
	if got := d.Detect("   "); got != domain.LangUnknown {
		t.Errorf("expected unknown for blank text, got %q", got)
	}
	if got := d.Detect("This is a perfectly ordinary English sentence about the weather today."); got != "en" {
		t.Errorf("expected en, got %q", got)
	}
	if got := d.Detect("Der schnelle braune Fuchs springt über den faulen Hund und läuft weiter."); got != "de" {
		t.Errorf("expected de, got %q", got)
	}
}

func TestLabelFor_Boundaries(t *testing.T) {
	cases := map[float64]domain.Label{
		-1.0:   domain.LabelNegative,
		-0.5:   domain.LabelNegative,
		-0.05:  domain.LabelNegative,
		-0.049: domain.LabelNeutral,
		0:      domain.LabelNeutral,
		0.05:   domain.LabelNeutral,
		0.0501: domain.LabelPositive,
		1.0:    domain.LabelPositive,
	}
	for score, want := range cases {
		if got := LabelFor(score); got != want {
			t.Errorf("LabelFor(%v): expected %s, got %s", score, want, got)
		}
	}
}

func TestLabelerApply(t *testing.T) {
	var seen []string
	l := &Labeler{Scorer: ScorerFunc(func(text string) float64 {
		seen = append(seen, text)
		switch text {
		case "great":
			return 0.8
		case "awful":
			return -3
		case "ecstatic":
			return 2.5
		}
		return 0.01
	})}
	recs := []domain.Record{
		{ID: "a", TextEN: "great"},
		{ID: "b", TextEN: "awful"},
		{ID: "c", TextEN: ""},
		{ID: "d", TextEN: "meh"},
		{ID: "e", TextEN: "ecstatic"},
	}
	l.Apply(recs)

	if len(seen) != 4 {
		t.Fatalf("scorer should skip empty text, saw %q", seen)
	}
	want := []struct {
		score float64
		label domain.Label
	}{
		{0.8, domain.LabelPositive},
		{-1, domain.LabelNegative},
		{0, domain.LabelNeutral},
		{0.01, domain.LabelNeutral},
		{1, domain.LabelPositive},
	}
	for i, w := range want {
		if recs[i].SentimentScore != w.score || recs[i].SentimentLabel != w.label {
			t.Errorf("record %s: expected (%v, %s), got (%v, %s)", recs[i].ID, w.score, w.label, recs[i].SentimentScore, recs[i].SentimentLabel)
		}
	}
}

func TestVaderScorer(t *testing.T) {
	v := NewVaderScorer()
	if s := v.Compound("I love this, it is wonderful!"); s <= NeutralBand {
		t.Errorf("expected positive score, got %v", s)
	}
	if s := v.Compound("This is terrible and I hate it."); s >= -NeutralBand {
		t.Errorf("expected negative score, got %v", s)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.Mean != 0 || s.Counts[domain.LabelPositive] != 0 {
		t.Fatalf("unexpected empty summary %+v", s)
	}

	s = Summarize([]domain.Record{
		{SentimentScore: 0.5, SentimentLabel: domain.LabelPositive},
		{SentimentScore: -0.5, SentimentLabel: domain.LabelNegative},
		{SentimentScore: 0.3, SentimentLabel: domain.LabelPositive},
		{SentimentScore: 0, SentimentLabel: domain.LabelNeutral},
	})
	if s.Total != 4 || s.Counts[domain.LabelPositive] != 2 || s.Counts[domain.LabelNegative] != 1 || s.Counts[domain.LabelNeutral] != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.Mean < 0.0749 || s.Mean > 0.0751 {
		t.Fatalf("expected mean 0.075, got %v", s.Mean)
	}
}
