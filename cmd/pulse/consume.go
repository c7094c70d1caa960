package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/pulse/engine/ingest"
	"github.com/WessleyAI/pulse/pkg/metrics"
)

func newConsumeCmd(a *app) *cobra.Command {
	var (
		queue       string
		noTranslate bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Store batches published by the standalone collectors",
		Long: "Subscribes to " + ingest.CollectedSubject + " and runs every batch through translation, " +
			"labeling and storage. Failed batches are retried, then parked on " + ingest.DLQSubject + ".",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.NATS.URL == "" {
				return errors.New("consume needs a NATS url (NATS_URL or nats.url)")
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer b.close()

			reg := metrics.New()
			p, nc, cleanup, err := newPipeline(a, b, pipelineOpts{translate: !noTranslate, metrics: reg})
			if err != nil {
				return err
			}
			defer cleanup()

			sub, err := ingest.StartConsumer(nc, p, queue)
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			a.log.Info("consuming", "subject", ingest.CollectedSubject, "queue", queue)

			if metricsAddr != "" {
				go func() {
					if err := serveMetrics(ctx, metricsAddr, reg, a); err != nil {
						a.log.Error("metrics server failed", "err", err)
					}
				}()
			}
			<-ctx.Done()
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&queue, "queue", "pulse-ingest", "NATS queue group; consumers in one group share batches")
	f.BoolVar(&noTranslate, "no-translate", false, "skip translation")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address")
	return cmd
}
