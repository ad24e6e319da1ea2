// Package memory provides an in-process job queue for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/scrapeworker/internal/queue"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// Queue is an unbounded FIFO with context-aware, bounded-wait dequeue.
type Queue struct {
	mu        sync.Mutex
	items     []scraping.Job
	closed    bool
	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends a job to the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, job scraping.Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return queue.ErrClosed
	}
	q.items = append(q.items, job)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Dequeue pops the head of the queue, waiting up to timeout for one to arrive.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*scraping.Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		job, err := q.pop()
		if err != nil || job != nil {
			return job, err
		}
		select {
		case <-q.notify:
		case <-timer.C:
			return nil, nil
		case <-q.done:
			return nil, queue.ErrClosed
		case <-ctx.Done():
			return nil, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		}
	}
}

// Len reports the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards pending jobs and wakes blocked consumers. Safe to call twice.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.items = nil
		q.mu.Unlock()
		close(q.done)
	})
	return nil
}

func (q *Queue) pop() (*scraping.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, queue.ErrClosed
	}
	if len(q.items) == 0 {
		return nil, nil
	}
	job := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return &job, nil
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
