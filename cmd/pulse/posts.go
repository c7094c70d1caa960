package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/engine/enrich"
	"github.com/WessleyAI/pulse/engine/store"
)

// reader lists stored posts and enriches them; enrichment fields are never
// persisted, so every read recomputes them.
type reader struct {
	posts   postStore
	gate    *enrich.Gate
	labeler *enrich.Labeler
}

func newReader(posts postStore, gate *enrich.Gate) *reader {
	return &reader{posts: posts, gate: gate, labeler: &enrich.Labeler{Scorer: enrich.NewVaderScorer()}}
}

func (r *reader) list(ctx context.Context, q store.Query) ([]domain.Record, error) {
	recs, err := r.posts.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if _, err := r.gate.Apply(ctx, recs); err != nil {
		return nil, err
	}
	r.labeler.Apply(recs)
	return recs, nil
}

func parseSources(names []string) ([]domain.Source, error) {
	var out []domain.Source
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := domain.ParseSource(part)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func newPostsCmd(a *app) *cobra.Command {
	var (
		keyword   string
		sources   []string
		limit     int
		translate bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List stored posts with their sentiment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			srcs, err := parseSources(sources)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer b.close()

			recs, err := newReader(b.posts, newGate(a.cfg, translate)).list(ctx, store.Query{Keyword: keyword, Sources: srcs, Limit: limit})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "CREATED\tSOURCE\tLABEL\tSCORE\tTEXT")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%+.3f\t%s\n", r.CreatedUTC, r.Source, r.SentimentLabel, r.SentimentScore, snippet(r.TextEN, 80))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&keyword, "keyword", "k", "", "only posts whose keyword contains this")
	f.StringSliceVarP(&sources, "source", "s", nil, "only these sources (mastodon, reddit)")
	f.IntVarP(&limit, "limit", "l", 50, "maximum posts to show")
	f.BoolVar(&translate, "translate", false, "translate non-English posts before scoring")
	f.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// snippet flattens whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return text
}
