// Command scraper-reddit searches one subreddit for keywords and emits each
// result as an ingest batch, to NATS for `pulse consume` or as JSON lines on
// stdout.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/pulse/engine/scraper/reddit"
	"github.com/WessleyAI/pulse/internal/config"
	"github.com/WessleyAI/pulse/internal/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Default().Log.Logger(os.Stderr).Error("config", "error", err)
		os.Exit(1)
	}
	log := cfg.Log.Logger(os.Stderr)

	natsURL := flag.String("nats", "", "NATS URL (if empty, output JSON to stdout)")
	keywords := flag.String("keyword", "", "comma separated keywords to search for")
	subreddit := flag.String("subreddit", cfg.Reddit.Subreddit, "subreddit to search")
	limit := flag.Int("limit", cfg.Fetch.Limit, "posts per keyword per round")
	minScore := flag.Int("min-score", cfg.Fetch.MinScore, "minimum post score")
	interval := flag.Duration("interval", 0, "polling interval (0 = one-shot)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := reddit.NewScraper(reddit.Config{
		Subreddit: *subreddit,
		Sort:      cfg.Reddit.Sort,
		UserAgent: cfg.Reddit.UserAgent,
		RateLimit: cfg.Reddit.RateLimit,
		Timeout:   cfg.Fetch.HTTPTimeout,
	}, log)

	emit := runner.JSONEmitter(os.Stdout)
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL, nats.Name("scraper-reddit"))
		if err != nil {
			log.Error("nats connect", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		emit = runner.NATSEmitter(nc)
		log.Info("publishing batches", "url", *natsURL)
	}

	opts := runner.Options{
		Keywords: runner.ParseKeywords(*keywords),
		Limit:    *limit,
		MinScore: *minScore,
		Interval: *interval,
	}
	if err := runner.Run(ctx, collector, opts, emit, log); err != nil {
		log.Error("scrape", "error", err)
		stop()
		os.Exit(1)
	}
}

