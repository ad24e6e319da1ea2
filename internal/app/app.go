// Package app builds the worker process from configuration and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/browser"
	"github.com/JakeFAU/scrapeworker/internal/clock/system"
	"github.com/JakeFAU/scrapeworker/internal/config"
	"github.com/JakeFAU/scrapeworker/internal/extract"
	"github.com/JakeFAU/scrapeworker/internal/logging"
	"github.com/JakeFAU/scrapeworker/internal/policy/ratelimit"
	"github.com/JakeFAU/scrapeworker/internal/queue/memory"
	redisqueue "github.com/JakeFAU/scrapeworker/internal/queue/redis"
	sqsqueue "github.com/JakeFAU/scrapeworker/internal/queue/sqs"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
	"github.com/JakeFAU/scrapeworker/internal/server"
	"github.com/JakeFAU/scrapeworker/internal/storage"
	gcsstorage "github.com/JakeFAU/scrapeworker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/scrapeworker/internal/storage/local"
	memorystorage "github.com/JakeFAU/scrapeworker/internal/storage/memory"
	s3storage "github.com/JakeFAU/scrapeworker/internal/storage/s3"
	"github.com/JakeFAU/scrapeworker/internal/storage/supabase"
	"github.com/JakeFAU/scrapeworker/internal/telemetry"
	"github.com/JakeFAU/scrapeworker/internal/worker"
)

// Version is reported on traces.
var Version = "dev"

// App holds the long-lived services of one worker process.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	pool           *worker.Pool
	workers        []*worker.Worker
	server         *server.Server
	closers        []func() error
	tracerShutdown func(context.Context) error
}

// QueueFactory opens a connection to the configured broker.
type QueueFactory func(ctx context.Context) (scraping.JobQueue, error)

// NewQueueFactory returns a factory for the configured queue provider. The memory
// provider hands out one shared in-process queue.
func NewQueueFactory(cfg config.QueueConfig, logger *zap.Logger) (QueueFactory, error) {
	switch cfg.Provider {
	case config.QueueMemory:
		shared := memory.NewQueue()
		return func(context.Context) (scraping.JobQueue, error) { return shared, nil }, nil
	case config.QueueRedis:
		return func(ctx context.Context) (scraping.JobQueue, error) {
			q, err := redisqueue.New(ctx, redisqueue.Config{URL: cfg.Redis.URL, Name: cfg.Redis.Name}, logger.Named("redis_queue"))
			if err != nil {
				return nil, fmt.Errorf("redis queue init failed: %w", err)
			}
			return q, nil
		}, nil
	case config.QueueSQS:
		return func(ctx context.Context) (scraping.JobQueue, error) {
			q, err := sqsqueue.New(ctx, sqsqueue.Config{
				QueueURL: cfg.SQS.QueueURL,
				Region:   cfg.SQS.Region,
				Endpoint: cfg.SQS.Endpoint,
			}, logger.Named("sqs_queue"))
			if err != nil {
				return nil, fmt.Errorf("sqs queue init failed: %w", err)
			}
			return q, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown queue provider: %s", cfg.Provider)
	}
}

// NewStorage builds the configured storage client. The returned closer is never nil.
func NewStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (scraping.StorageClient, func() error, error) {
	noop := func() error { return nil }
	provider := cfg.Provider
	if provider == config.StorageAuto {
		provider = config.StorageMemory
		if cfg.Supabase.Enabled() {
			provider = config.StorageSupabase
		}
	}

	var (
		uploader storage.Uploader
		closer   = noop
	)
	switch provider {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage backend. Datasets are discarded on exit.")
		return memorystorage.New(), noop, nil
	case config.StorageSupabase:
		up, err := supabase.New(supabase.Config{
			URL:     cfg.Supabase.URL,
			Key:     cfg.Supabase.Key,
			Bucket:  cfg.Bucket,
			Timeout: cfg.Supabase.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("supabase storage init failed: %w", err)
		}
		logger.Info("Using Supabase storage backend", zap.String("bucket", cfg.Bucket))
		uploader = up
	case config.StorageGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, nil, fmt.Errorf("gcs storage init failed: %w", err)
		}
		logger.Info("Using GCS storage backend", zap.String("bucket", cfg.Bucket))
		uploader, closer = store, store.Close
	case config.StorageS3:
		store, err := s3storage.Open(ctx, s3storage.Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 storage init failed: %w", err)
		}
		logger.Info("Using S3 storage backend", zap.String("bucket", cfg.Bucket))
		uploader = store
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("local storage init failed: %w", err)
		}
		logger.Info("Using local storage backend", zap.String("path", cfg.Local.BaseDir))
		uploader = store
	default:
		return nil, nil, fmt.Errorf("unknown storage provider: %s", provider)
	}

	client, err := storage.New(uploader, logger.Named("storage"))
	if err != nil {
		return nil, nil, errors.Join(err, closer())
	}
	return client, closer, nil
}

// NewScraper builds the browser-backed scraper.
func NewScraper(cfg config.Config, logger *zap.Logger) *browser.Scraper {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Browser.DomainQPS,
		DefaultBurst: cfg.Browser.DomainBurst,
	})
	launcher := browser.NewLauncher(cfg.BrowserSettings(), limiter, logger.Named("browser"))
	return browser.NewScraper(launcher, extract.New(logger.Named("extract")), logger.Named("scraper"))
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	return build(ctx, cfg, logger, NewScraper(cfg, logger))
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, scraper scraping.Scraper) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = errors.Join(err, app.Close(ctx))
			app = nil
		}
	}()

	tp, err := telemetry.InitTracerProvider(ctx, logging.ServiceName, Version)
	if err != nil {
		return app, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	store, closeStore, err := NewStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return app, err
	}
	app.closers = append(app.closers, closeStore)

	newQueue, err := NewQueueFactory(cfg.Queue, logger)
	if err != nil {
		return app, err
	}

	clock := system.New()
	workerCfg := worker.Config{
		PollInterval:   cfg.Worker.PollInterval,
		DequeueTimeout: cfg.Worker.DequeueTimeout,
	}
	var first scraping.JobQueue
	for i := range cfg.Worker.Concurrency {
		q, err := newQueue(ctx)
		if err != nil {
			return app, err
		}
		app.closers = append(app.closers, q.Close)
		if first == nil {
			first = q
		}
		app.workers = append(app.workers, worker.New(
			q,
			store,
			scraper,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	app.pool = worker.NewPool(first, app.workers, cfg.Worker.PollInterval, logger.Named("pool"))
	app.server = server.New(app.Ready, logger.Named("http"))

	logger.Info("Application built",
		zap.String("queue", cfg.Queue.Provider),
		zap.String("storage", cfg.Storage.Provider),
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Bool("headless", cfg.Browser.Headless),
	)
	return app, nil
}

// Pool returns the worker pool.
func (a *App) Pool() *worker.Pool {
	return a.pool
}

// Ready reports an error once any worker has been stopped.
func (a *App) Ready(context.Context) error {
	for i, w := range a.workers {
		if w.Stopped() {
			return fmt.Errorf("worker %d stopped", i)
		}
	}
	return nil
}

// Run starts the workers and, when enabled, the ops server. It blocks until ctx ends
// and every in-flight job has finished.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srvErr := make(chan error, 1)
	if a.cfg.Server.Enabled {
		go func() {
			err := a.server.ListenAndServe(ctx, a.cfg.Server.Port)
			if err != nil {
				a.logger.Error("http server error", zap.Error(err))
				cancel()
			}
			srvErr <- err
		}()
	} else {
		srvErr <- nil
	}

	poolErr := a.pool.Run(ctx)
	cancel()
	a.logger.Info("shutdown initiated")
	return errors.Join(poolErr, <-srvErr)
}

// Close releases queues, storage clients and the tracer provider.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	a.closers = nil
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		a.tracerShutdown = nil
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
