package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// Pool fans queue work out to a set of workers sharing one queue.
type Pool struct {
	queue   scraping.JobQueue
	workers []*Worker
	poll    time.Duration
	logger  *zap.Logger
}

// NewPool creates a Pool over workers that all consume queue.
func NewPool(queue scraping.JobQueue, workers []*Worker, poll time.Duration, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:   queue,
		workers: workers,
		poll:    poll,
		logger:  logger,
	}
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Run starts all workers and blocks until the context finishes and every
// in-flight job has completed.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, w := range p.workers {
		wg.Add(1)
		go func(idx int, wk *Worker) {
			defer wg.Done()
			if err := wk.RunForever(ctx, p.poll); err != nil {
				p.logger.Error("Worker exited with error", zap.Int("worker", idx), zap.Error(err))
			}
		}(i, w)
	}
	<-ctx.Done()
	err := p.Stop()
	wg.Wait()
	return err
}

// Stop signals every worker to finish its current job and exit.
func (p *Pool) Stop() error {
	var errs []error
	for _, w := range p.workers {
		errs = append(errs, w.Stop())
	}
	return errors.Join(errs...)
}

// Enqueue proxies to the underlying queue.
func (p *Pool) Enqueue(ctx context.Context, job scraping.Job) error {
	if err := p.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
