// Package runner drives one collector on a schedule for the standalone
// collector commands and hands each batch to an Emitter.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/pulse/engine/ingest"
	"github.com/WessleyAI/pulse/engine/scraper"
	"github.com/WessleyAI/pulse/pkg/natsutil"
)

// Emitter delivers one batch.
type Emitter func(ctx context.Context, b ingest.Batch) error

// NATSEmitter publishes batches for `pulse consume`.
func NATSEmitter(nc *nats.Conn) Emitter {
	return func(ctx context.Context, b ingest.Batch) error {
		return natsutil.Publish(ctx, nc, ingest.CollectedSubject, b)
	}
}

// JSONEmitter writes one JSON batch per line to w.
func JSONEmitter(w io.Writer) Emitter {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(_ context.Context, b ingest.Batch) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(b)
	}
}

// Options controls Run.
type Options struct {
	Keywords []string
	Limit    int
	MinScore int
	// Interval between rounds. Zero runs a single round.
	Interval time.Duration
}

// ParseKeywords splits a comma separated list, dropping blanks.
func ParseKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Run collects every keyword once per round. An error in the first round is
// returned; later rounds only log, so a flaky upstream does not stop polling.
func Run(ctx context.Context, c scraper.Collector, opts Options, emit Emitter, log *slog.Logger) error {
	if len(opts.Keywords) == 0 {
		return errors.New("runner: no keywords")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("source", c.Source())

	if err := round(ctx, c, opts, emit, log); err != nil {
		return err
	}
	if opts.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := round(ctx, c, opts, emit, log); err != nil {
				log.Error("collect round failed", "err", err)
			}
		}
	}
}

func round(ctx context.Context, c scraper.Collector, opts Options, emit Emitter, log *slog.Logger) error {
	var errs []error
	for _, kw := range opts.Keywords {
		recs, err := c.Search(ctx, kw, opts.Limit, opts.MinScore)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kw, err))
			continue
		}
		log.Info("collected", "keyword", kw, "count", len(recs))
		if len(recs) == 0 {
			continue
		}
		if err := emit(ctx, ingest.Batch{Keyword: kw, Source: c.Source(), Records: recs}); err != nil {
			errs = append(errs, fmt.Errorf("%s: emit: %w", kw, err))
		}
	}
	return errors.Join(errs...)
}
