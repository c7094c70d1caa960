// Command pulse collects keyword posts from Mastodon and Reddit, labels their
// sentiment and stores them, and serves the stored result.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/pulse/internal/config"
)

var version = "0.1.0"

// app carries what every subcommand needs once the root has loaded config.
type app struct {
	cfg config.Config
	log *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath string

	root := &cobra.Command{
		Use:           "pulse",
		Short:         "Keyword sentiment across Mastodon and Reddit",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				os.Setenv("PULSE_CONFIG", configPath)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = cfg.Log.Logger(cmd.ErrOrStderr())
			slog.SetDefault(a.log)
			return nil
		},
	}
	root.SetVersionTemplate("pulse version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides PULSE_CONFIG)")

	root.AddCommand(newFetchCmd(a))
	root.AddCommand(newPostsCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newConsumeCmd(a))
	return root
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
