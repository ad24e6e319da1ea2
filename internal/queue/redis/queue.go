// Package redis implements the job queue on a Redis list (LPUSH producers, BRPOP consumers).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/queue"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// connectionTimeout bounds the startup ping.
const connectionTimeout = 5 * time.Second

// minBlock is the smallest BRPOP timeout Redis honors; zero would block forever.
const minBlock = time.Second

// Config identifies the broker and list.
type Config struct {
	URL  string
	Name string
}

// Queue is a Redis list backed job queue.
type Queue struct {
	client *goredis.Client
	name   string
	logger *zap.Logger
	closed atomic.Bool
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("redis queue name is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("Failed to close redis client after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewFromClient(client, cfg.Name, logger), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client, name string, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, name: name, logger: logger}
}

// Enqueue pushes the job's wire form onto the head of the list.
func (q *Queue) Enqueue(ctx context.Context, job scraping.Job) error {
	if q.closed.Load() {
		return queue.ErrClosed
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.name, err)
	}
	return nil
}

// Dequeue blocks on the tail of the list for up to timeout (rounded up to one second).
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*scraping.Job, error) {
	if q.closed.Load() {
		return nil, queue.ErrClosed
	}
	if timeout < minBlock {
		timeout = minBlock
	}
	res, err := q.client.BRPop(ctx, timeout, q.name).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, nil
	case err != nil:
		if q.closed.Load() {
			return nil, queue.ErrClosed
		}
		return nil, fmt.Errorf("brpop %s: %w", q.name, err)
	case len(res) != 2:
		return nil, fmt.Errorf("brpop %s: unexpected reply length %d", q.name, len(res))
	}
	job, err := scraping.DecodeJob([]byte(res[1]))
	if err != nil {
		q.logger.Error("Dropping undecodable job payload", zap.String("queue", q.name), zap.Error(err))
		return nil, fmt.Errorf("decode job from %s: %w", q.name, err)
	}
	return &job, nil
}

// Close releases the connection pool. Safe to call twice.
func (q *Queue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
