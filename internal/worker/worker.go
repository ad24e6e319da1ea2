// Package worker implements the scraping job execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/clock/system"
	"github.com/JakeFAU/scrapeworker/internal/export"
	"github.com/JakeFAU/scrapeworker/internal/extract"
	"github.com/JakeFAU/scrapeworker/internal/logging"
	"github.com/JakeFAU/scrapeworker/internal/metrics"
	"github.com/JakeFAU/scrapeworker/internal/queue"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultDequeueTimeout = time.Second
)

var tracer = otel.Tracer("github.com/JakeFAU/scrapeworker/internal/worker")

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Config controls Worker behavior.
type Config struct {
	PollInterval   time.Duration
	DequeueTimeout time.Duration
}

// Worker consumes jobs one at a time and drives each through
// queued -> running -> {succeeded | failed}.
type Worker struct {
	queue   scraping.JobQueue
	storage scraping.StorageClient
	scraper scraping.Scraper
	clock   Clock
	cfg     Config
	logger  *zap.Logger
	stopped atomic.Bool
}

// New constructs a Worker. A nil clock uses the system clock.
func New(
	q scraping.JobQueue,
	storage scraping.StorageClient,
	scraper scraping.Scraper,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = defaultDequeueTimeout
	}
	return &Worker{
		queue:   q,
		storage: storage,
		scraper: scraper,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// ProcessJob runs one job to a terminal state and returns the final snapshot.
// Any failure after the running snapshot is persisted as a failed snapshot and
// the causing error is returned.
func (w *Worker) ProcessJob(ctx context.Context, job scraping.Job) (scraping.JobStatus, error) {
	job = job.WithDefaults()
	ctx, span := tracer.Start(ctx, "worker.ProcessJob")
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.url", job.URL),
		attribute.String("job.extraction_type", string(job.ExtractionType)),
	)
	defer span.End()

	logger := logging.Job(w.logger, job.ID, job.URL)
	start := w.clock.Now()

	running := scraping.NewStatus(job, scraping.JobStateRunning)
	if err := w.storage.UpdateStatus(ctx, running); err != nil {
		logger.Error("Failed to persist running status", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "running status not persisted")
		return running, fmt.Errorf("persist running status: %w", err)
	}
	metrics.ObserveJob(string(scraping.JobStateRunning))
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	logger.Info("Job running", zap.String("extraction_type", string(job.ExtractionType)))

	stored, err := w.execute(ctx, job)
	if err != nil {
		status, ferr := w.fail(ctx, job, err, logger)
		w.finish(job, status.State, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return status, ferr
	}

	succeeded := scraping.NewStatus(job, scraping.JobStateSucceeded)
	succeeded.StoredFiles = stored
	if err := w.storage.UpdateStatus(ctx, succeeded); err != nil {
		// The dataset is stored; the last persisted state stays running.
		logger.Error("Failed to persist succeeded status", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "succeeded status not persisted")
		return running, fmt.Errorf("persist succeeded status: %w", err)
	}
	w.finish(job, scraping.JobStateSucceeded, start)
	logger.Info("Job succeeded", zap.Any("stored_files", stored))
	return succeeded, nil
}

func (w *Worker) execute(ctx context.Context, job scraping.Job) (map[string]string, error) {
	if err := extract.ValidateJob(job); err != nil {
		return nil, err
	}
	if err := export.ValidateFormats(job.ExportFormats); err != nil {
		return nil, err
	}
	records, err := w.scraper.Scrape(ctx, job)
	if err != nil {
		return nil, err
	}
	metrics.ObserveRecords(string(job.ExtractionType), len(records))
	artifacts, err := export.Build(records, job.ExportFormats)
	if err != nil {
		return nil, err
	}
	stored, err := w.storage.PersistDataset(ctx, job, artifacts)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (w *Worker) fail(ctx context.Context, job scraping.Job, cause error, logger *zap.Logger) (scraping.JobStatus, error) {
	failed := scraping.NewStatus(job, scraping.JobStateFailed)
	failed.Detail = cause.Error()
	logger.Error("Job failed", zap.Error(cause))
	if err := w.storage.UpdateStatus(ctx, failed); err != nil {
		logger.Error("Failed to persist failed status", zap.Error(err))
		return failed, errors.Join(cause, fmt.Errorf("persist failed status: %w", err))
	}
	return failed, cause
}

func (w *Worker) finish(job scraping.Job, state scraping.JobState, start time.Time) {
	metrics.ObserveJob(string(state))
	metrics.ObserveJobDuration(string(job.ExtractionType), string(state), w.clock.Now().Sub(start))
}

// RunForever polls the queue and processes jobs until Stop is called or ctx ends.
// A job that has started runs to completion even if ctx is canceled meanwhile.
func (w *Worker) RunForever(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = w.cfg.PollInterval
	}
	w.logger.Info("Worker started", zap.Duration("poll_interval", pollInterval))
	for !w.stopped.Load() {
		if err := ctx.Err(); err != nil {
			break
		}
		job, err := w.queue.Dequeue(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || w.stopped.Load() || ctx.Err() != nil {
				break
			}
			w.logger.Error("Queue dequeue failed", zap.Error(err))
			if !sleep(ctx, pollInterval) {
				break
			}
			continue
		}
		if job == nil {
			if !sleep(ctx, pollInterval) {
				break
			}
			continue
		}
		w.logger.Debug("Dequeued job", zap.String("job_id", job.ID))
		if _, err := w.ProcessJob(context.WithoutCancel(ctx), *job); err != nil {
			w.logger.Error("Job processing returned error", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	w.logger.Info("Worker stopped")
	return nil
}

// Stop requests cooperative shutdown and closes the queue.
func (w *Worker) Stop() error {
	if w.stopped.Swap(true) {
		return nil
	}
	if err := w.queue.Close(); err != nil {
		return fmt.Errorf("close queue: %w", err)
	}
	return nil
}

// Stopped reports whether Stop has been called.
func (w *Worker) Stopped() bool {
	return w.stopped.Load()
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
