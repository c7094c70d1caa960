package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/pulse/engine/domain"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		query       string
		useMastodon bool
		useReddit   bool
		limit       int
		minScore    int
		parallel    bool
		noTranslate bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Collect, label and store posts for a keyword",
		Example: `  pulse fetch --query golang --mastodon --reddit
  pulse fetch -q "rust lang" --reddit --limit 50 --min-score 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Fetch.Limit
			}
			if !cmd.Flags().Changed("min-score") {
				minScore = a.cfg.Fetch.MinScore
			}
			if !cmd.Flags().Changed("parallel") {
				parallel = a.cfg.Fetch.Parallel
			}

			var sources []domain.Source
			if useMastodon {
				sources = append(sources, domain.SourceMastodon)
			}
			if useReddit {
				sources = append(sources, domain.SourceReddit)
			}
			if len(sources) == 0 {
				return fmt.Errorf("%w: enable at least one of --mastodon or --reddit", domain.ErrInvalidArgument)
			}

			ctx := cmd.Context()
			b, err := openBackend(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer b.close()

			p, _, cleanup, err := newPipeline(a, b, pipelineOpts{translate: !noTranslate, parallel: parallel})
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := p.RunDetailed(ctx, query, sources, limit, minScore)
			if err != nil {
				return err
			}
			if verbose {
				for _, src := range rep.Sources {
					printf(cmd, "%-9s %d collected\n", src+":", rep.Collected[src])
				}
				printf(cmd, "Unique: %d, translated: %d\n", rep.Unique, rep.Translated)
				for _, l := range domain.Labels {
					printf(cmd, "%-9s %d\n", string(l)+":", rep.Sentiment.Counts[l])
				}
			}
			printf(cmd, "Inserted: %d rows.\n", rep.Affected)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&query, "query", "q", "", "keyword to search for (required)")
	f.BoolVar(&useMastodon, "mastodon", false, "collect from Mastodon")
	f.BoolVar(&useReddit, "reddit", false, "collect from Reddit")
	f.IntVarP(&limit, "limit", "l", 200, "maximum posts per source")
	f.IntVar(&minScore, "min-score", 0, "drop posts scoring below this")
	f.BoolVar(&parallel, "parallel", false, "query sources concurrently")
	f.BoolVar(&noTranslate, "no-translate", false, "skip translation; non-English text is scored as is")
	f.BoolVarP(&verbose, "verbose", "v", false, "print per-source counts and the label breakdown")
	cmd.MarkFlagRequired("query")
	return cmd
}
