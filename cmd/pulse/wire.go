package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/engine/enrich"
	"github.com/WessleyAI/pulse/engine/ingest"
	"github.com/WessleyAI/pulse/engine/scraper"
	"github.com/WessleyAI/pulse/engine/scraper/mastodon"
	"github.com/WessleyAI/pulse/engine/scraper/reddit"
	"github.com/WessleyAI/pulse/engine/store"
	"github.com/WessleyAI/pulse/internal/config"
	"github.com/WessleyAI/pulse/pkg/metrics"
	"github.com/WessleyAI/pulse/pkg/ollama"
)

// postStore is what the commands need from either backend.
type postStore interface {
	ingest.Store
	List(ctx context.Context, q store.Query) ([]domain.Record, error)
	Get(ctx context.Context, id string) (domain.Record, error)
}

type backend struct {
	posts postStore
	ping  func(context.Context) error
	close func() error
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.Store.Backend {
	case config.StoreNeo4j:
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
		if err != nil {
			return nil, fmt.Errorf("neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx)
			return nil, fmt.Errorf("neo4j connect: %w", err)
		}
		return &backend{
			posts: store.NewGraph(driver),
			ping:  driver.VerifyConnectivity,
			close: func() error { return driver.Close(context.Background()) },
		}, nil
	default:
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return &backend{posts: db, ping: db.Ping, close: db.Close}, nil
	}
}

func newCollectors(a *app) []scraper.Collector {
	cfg := a.cfg
	return []scraper.Collector{
		mastodon.New(mastodon.Config{
			BaseURL:       cfg.Mastodon.URL,
			Token:         cfg.Mastodon.Token,
			Mode:          mastodon.Mode(cfg.Mastodon.Mode),
			PageSize:      cfg.Mastodon.PageSize,
			BridgeDomains: cfg.Mastodon.BridgeDomains,
			Interval:      cfg.Mastodon.Interval,
			Timeout:       cfg.Fetch.HTTPTimeout,
		}, a.log),
		reddit.NewScraper(reddit.Config{
			Subreddit: cfg.Reddit.Subreddit,
			Sort:      cfg.Reddit.Sort,
			UserAgent: cfg.Reddit.UserAgent,
			RateLimit: cfg.Reddit.RateLimit,
			Timeout:   cfg.Fetch.HTTPTimeout,
		}, a.log),
	}
}

func newGate(cfg config.Config, translate bool) *enrich.Gate {
	g := &enrich.Gate{Detector: enrich.WhatlangDetector{}}
	if translate && cfg.Ollama.Enabled {
		g.Translator = ollama.NewTranslator(cfg.Ollama.URL, ollama.Options{Model: cfg.Ollama.Model})
	}
	return g
}

// pipelineOpts are the per-invocation switches of fetch and consume.
type pipelineOpts struct {
	translate bool
	parallel  bool
	metrics   *metrics.Registry
}

// newPipeline wires a pipeline over b. The returned cleanup closes the NATS
// connection, if one was opened.
func newPipeline(a *app, b *backend, opts pipelineOpts) (*ingest.Pipeline, *nats.Conn, func(), error) {
	deps := ingest.Deps{
		Collectors: newCollectors(a),
		Gate:       newGate(a.cfg, opts.translate),
		Labeler:    &enrich.Labeler{Scorer: enrich.NewVaderScorer()},
		Store:      b.posts,
		Logger:     a.log,
		Parallel:   opts.parallel,
	}
	if opts.metrics != nil {
		deps.Observer = ingest.NewMetrics(opts.metrics)
	}

	cleanup := func() {}
	var nc *nats.Conn
	if a.cfg.NATS.URL != "" {
		var err error
		nc, err = nats.Connect(a.cfg.NATS.URL, nats.Name("pulse"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		deps.Publisher = ingest.NewNATSPublisher(nc)
		cleanup = func() { nc.Drain() }
	}

	p, err := ingest.New(deps)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return p, nc, cleanup, nil
}
