package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/app"
)

func newWorkerCmd() *cobra.Command {
	var (
		concurrency  int
		pollInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the scraping worker loop",
		Long: `Polls the job queue and processes one job at a time per worker until
SIGINT or SIGTERM. In-flight jobs finish before the process exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if cmd.Flags().Changed("concurrency") {
				cfg.Worker.Concurrency = concurrency
			}
			if cmd.Flags().Changed("poll-interval") {
				cfg.Worker.PollInterval = pollInterval
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.Build(ctx, cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer func() {
				if cerr := application.Close(context.WithoutCancel(ctx)); cerr != nil {
					rt.logger.Warn("Failed to close application", zap.Error(cerr))
				}
			}()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run workers: %w", err)
			}
			rt.logger.Info("Worker command finished.")
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of worker instances in this process")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 500*time.Millisecond, "sleep between empty polls")
	return cmd
}
