// Package cmd defines the CLI commands for the scrapeworker executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/app"
	"github.com/JakeFAU/scrapeworker/internal/config"
	"github.com/JakeFAU/scrapeworker/internal/logging"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

type runtimeKeyType struct{}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newQueue opens one connection to the configured broker. It is a variable so tests
// can inject an in-memory queue.
var newQueue = func(ctx context.Context, cfg config.QueueConfig, logger *zap.Logger) (scraping.JobQueue, error) {
	factory, err := app.NewQueueFactory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return factory(ctx)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "scrapeworker",
		Short: "Executes queued scraping jobs in a headless browser.",
		Long: `scrapeworker pulls scraping jobs from a queue, renders each target page in
headless Chrome, extracts records with the job's strategy, exports them as
JSON, CSV or XLSX and persists the datasets plus a status snapshot to object storage.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKeyType{}, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKeyType{}).(*runtime); ok {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newWorkerCmd(), newSubmitCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKeyType{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not initialized")
	}
	return rt, nil
}

// Execute loads .env when present and runs the root command.
func Execute() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		return err
	}
	return nil
}
