// Package ingest runs collectors, enrichment and storage as one pipeline and
// reports what each run did.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/engine/enrich"
	"github.com/WessleyAI/pulse/engine/scraper"
	"github.com/WessleyAI/pulse/pkg/fn"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
)

// Stage names used in StageError and span names.
const (
	StageValidate  = "validate"
	StageCollect   = "collect"
	StageTranslate = "translate"
	StageStore     = "store"
)

// Store persists enriched records and reports how many rows changed.
type Store interface {
	Upsert(ctx context.Context, records []domain.Record) (int64, error)
}

// RunRecorder is implemented by stores that keep a run log.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.Run) error
}

// Publisher receives stored records and the final report of each run.
type Publisher interface {
	PublishRecords(ctx context.Context, runID string, records []domain.Record) error
	PublishReport(ctx context.Context, rep RunReport) error
}

// Observer is told about every finished run, successful or not.
type Observer interface {
	Observe(rep RunReport)
}

// Deps holds the collaborators of a Pipeline.
type Deps struct {
	// Collectors run in this order; the first record seen for an id wins.
	Collectors []scraper.Collector
	Gate       *enrich.Gate
	Labeler    *enrich.Labeler
	Store      Store
	Publisher  Publisher
	Observer   Observer
	Logger     *slog.Logger
	// Parallel runs collectors concurrently. Aggregation order is unchanged.
	Parallel bool
}

// Pipeline is collect -> aggregate -> translate -> label -> store.
type Pipeline struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

// New checks deps and builds a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: store is required", domain.ErrInvalidArgument)
	}
	if deps.Gate == nil {
		deps.Gate = &enrich.Gate{}
	}
	if deps.Labeler == nil || deps.Labeler.Scorer == nil {
		return nil, fmt.Errorf("%w: labeler with a scorer is required", domain.ErrInvalidArgument)
	}
	seen := make(map[domain.Source]bool, len(deps.Collectors))
	for _, c := range deps.Collectors {
		if seen[c.Source()] {
			return nil, fmt.Errorf("%w: duplicate collector for %s", domain.ErrInvalidArgument, c.Source())
		}
		seen[c.Source()] = true
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{deps: deps, log: log, now: time.Now}, nil
}

// Run fetches keyword from the requested sources and stores the enriched
// result. It returns the number of rows written; a run that found nothing
// returns 0 and a nil error.
func (p *Pipeline) Run(ctx context.Context, keyword string, sources []domain.Source, limit, minScore int) (int64, error) {
	rep, err := p.RunDetailed(ctx, keyword, sources, limit, minScore)
	if err != nil {
		return 0, err
	}
	return rep.Affected, nil
}

// RunDetailed is Run returning the full report.
func (p *Pipeline) RunDetailed(ctx context.Context, keyword string, sources []domain.Source, limit, minScore int) (RunReport, error) {
	rep := p.newReport(strings.TrimSpace(keyword))
	if err := domain.ValidateSearch(keyword, limit, minScore); err != nil {
		return rep, &domain.StageError{Stage: StageValidate, Err: err}
	}
	cols, err := p.selectCollectors(sources)
	if err != nil {
		return rep, &domain.StageError{Stage: StageValidate, Err: err}
	}
	rep.Sources = fn.Map(cols, scraper.Collector.Source)
	if len(cols) == 0 {
		return p.finish(ctx, &rep, nil, nil)
	}

	collect := fn.TracedStage("pulse.collect", p.collect(cols, limit, minScore, &rep),
		attribute.String("pulse.keyword", rep.Keyword))
	batches, err := collect(ctx, rep.Keyword).Unwrap()
	if err != nil {
		return p.finish(ctx, &rep, nil, err)
	}
	return p.process(ctx, &rep, batches)
}

// Ingest runs already-collected batches through the rest of the pipeline.
// It is used for batches that arrive from standalone collectors.
func (p *Pipeline) Ingest(ctx context.Context, keyword string, batches ...[]domain.Record) (RunReport, error) {
	rep := p.newReport(strings.TrimSpace(keyword))
	if rep.Keyword == "" {
		return rep, &domain.StageError{Stage: StageValidate, Err: domain.NewValidationError("keyword", keyword, domain.ErrInvalidArgument)}
	}
	for _, r := range fn.Concat(batches...) {
		if rep.Collected[r.Source] == 0 {
			rep.Sources = append(rep.Sources, r.Source)
		}
		rep.Collected[r.Source]++
	}
	return p.process(ctx, &rep, batches)
}

func (p *Pipeline) newReport(keyword string) RunReport {
	start := p.now()
	return RunReport{
		RunID:     ulid.MustNew(ulid.Timestamp(start), ulid.DefaultEntropy()).String(),
		Keyword:   keyword,
		Collected: make(map[domain.Source]int),
		Sentiment: enrich.Summarize(nil),
		StartedAt: start.UTC(),
	}
}

// selectCollectors keeps configured order and drops collectors that were not
// asked for.
func (p *Pipeline) selectCollectors(sources []domain.Source) ([]scraper.Collector, error) {
	want := make(map[domain.Source]bool, len(sources))
	for _, s := range sources {
		if !domain.ValidSources[s] {
			return nil, domain.NewValidationError("source", string(s), domain.ErrUnknownSource)
		}
		want[s] = true
	}
	cols := fn.Filter(p.deps.Collectors, func(c scraper.Collector) bool { return want[c.Source()] })
	have := fn.CountBy(cols, scraper.Collector.Source)
	for _, s := range sources {
		if have[s] == 0 {
			return nil, fmt.Errorf("%w: no collector configured for %s", domain.ErrUnknownSource, s)
		}
	}
	return cols, nil
}

func (p *Pipeline) collect(cols []scraper.Collector, limit, minScore int, rep *RunReport) fn.Stage[string, [][]domain.Record] {
	return func(ctx context.Context, keyword string) fn.Result[[][]domain.Record] {
		search := func(c scraper.Collector) func() fn.Result[[]domain.Record] {
			return func() fn.Result[[]domain.Record] {
				return fn.FromPair(c.Search(ctx, keyword, limit, minScore))
			}
		}
		var results []fn.Result[[]domain.Record]
		if p.deps.Parallel {
			results = fn.FanOut(fn.Map(cols, search)...)
		} else {
			results = fn.Map(cols, func(c scraper.Collector) fn.Result[[]domain.Record] { return search(c)() })
		}

		batches := make([][]domain.Record, len(cols))
		for i, r := range results {
			src := cols[i].Source()
			recs, err := r.Unwrap()
			if err != nil {
				return fn.Err[[][]domain.Record](&domain.StageError{Stage: StageCollect, Err: fmt.Errorf("%s: %w", src, err)})
			}
			batches[i] = recs
			rep.Collected[src] = len(recs)
			p.log.Info("ingest: collected", "run_id", rep.RunID, "source", src, "count", len(recs))
		}
		return fn.Ok(batches)
	}
}

// process aggregates, enriches and stores. Empty input stores nothing.
func (p *Pipeline) process(ctx context.Context, rep *RunReport, batches [][]domain.Record) (RunReport, error) {
	records := scraper.Aggregate(batches...)
	rep.Unique = len(records)
	if len(records) == 0 {
		return p.finish(ctx, rep, nil, nil)
	}

	stages := fn.Then(
		fn.TracedStage("pulse.enrich", p.enrich(rep)),
		fn.TracedStage("pulse.store", p.store()),
	)
	affected, err := stages(ctx, records).Unwrap()
	if err != nil {
		return p.finish(ctx, rep, nil, err)
	}
	rep.Affected = affected
	return p.finish(ctx, rep, records, nil)
}

func (p *Pipeline) enrich(rep *RunReport) fn.Stage[[]domain.Record, []domain.Record] {
	return func(ctx context.Context, records []domain.Record) fn.Result[[]domain.Record] {
		n, err := p.deps.Gate.Apply(ctx, records)
		if err != nil {
			return fn.Err[[]domain.Record](&domain.StageError{Stage: StageTranslate, Err: err})
		}
		rep.Translated = n
		p.deps.Labeler.Apply(records)
		rep.Sentiment = enrich.Summarize(records)
		return fn.Ok(records)
	}
}

func (p *Pipeline) store() fn.Stage[[]domain.Record, int64] {
	return func(ctx context.Context, records []domain.Record) fn.Result[int64] {
		n, err := p.deps.Store.Upsert(ctx, records)
		if err != nil {
			if !errors.Is(err, domain.ErrPersistence) {
				err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
			}
			return fn.Err[int64](&domain.StageError{Stage: StageStore, Err: err})
		}
		return fn.Ok(n)
	}
}

// finish stamps the report, logs the run and notifies recorders and
// publishers. Their failures are logged and never change the result.
func (p *Pipeline) finish(ctx context.Context, rep *RunReport, stored []domain.Record, runErr error) (RunReport, error) {
	rep.Duration = p.now().Sub(rep.StartedAt)
	if runErr != nil {
		rep.Affected = 0
		rep.Err = runErr.Error()
	}
	log := p.log.With("run_id", rep.RunID, "keyword", rep.Keyword)

	if rec, ok := p.deps.Store.(RunRecorder); ok {
		if err := rec.RecordRun(ctx, rep.Run()); err != nil {
			log.Warn("ingest: record run failed", "error", err)
		}
	}
	if pub := p.deps.Publisher; pub != nil {
		if len(stored) > 0 {
			if err := pub.PublishRecords(ctx, rep.RunID, stored); err != nil {
				log.Warn("ingest: publish records failed", "error", err)
			}
		}
		if err := pub.PublishReport(ctx, *rep); err != nil {
			log.Warn("ingest: publish report failed", "error", err)
		}
	}
	if p.deps.Observer != nil {
		p.deps.Observer.Observe(*rep)
	}

	if runErr != nil {
		log.Error("ingest: run failed", "error", runErr, "duration", rep.Duration)
		return *rep, runErr
	}
	log.Info("ingest: run complete",
		"unique", rep.Unique,
		"translated", rep.Translated,
		"affected", rep.Affected,
		"duration", rep.Duration,
	)
	return *rep, nil
}
