package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/id/uuid"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

func newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <job.json>",
		Short: "Submit a scraping job definition",
		Long: `Reads a job definition from a JSON file, assigns an id when it has none,
validates it and pushes it onto the configured queue. The enqueued job is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read job file: %w", err)
			}

			q, err := newQueue(cmd.Context(), rt.cfg.Queue, rt.logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := q.Close(); cerr != nil {
					rt.logger.Warn("Failed to close queue", zap.Error(cerr))
				}
			}()

			job, err := submitJob(cmd.Context(), q, payload, uuid.New())
			if err != nil {
				return err
			}
			rt.logger.Info("Job submitted", zap.String("job_id", job.ID), zap.String("url", job.URL))

			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return fmt.Errorf("encode job: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

// submitJob decodes payload, assigns an id when missing, validates and enqueues it.
func submitJob(ctx context.Context, q scraping.JobQueue, payload []byte, ids scraping.IDGenerator) (scraping.Job, error) {
	var job scraping.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return scraping.Job{}, err
	}
	if strings.TrimSpace(job.ID) == "" {
		id, err := ids.NewID()
		if err != nil {
			return scraping.Job{}, err
		}
		job.ID = id
	}
	if err := job.Validate(); err != nil {
		return scraping.Job{}, err
	}
	if err := q.Enqueue(ctx, job); err != nil {
		return scraping.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}
