package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapeworker/internal/queue"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	result := make(chan *scraping.Job, 1)
	errCh := make(chan error, 1)

	go func() {
		job, err := q.Dequeue(context.Background(), time.Second)
		if err != nil {
			errCh <- err
			return
		}
		result <- job
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	require.NoError(t, q.Enqueue(context.Background(), scraping.Job{ID: "job-1"}))

	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.NotNil(t, got)
		assert.Equal(t, "job-1", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueIsFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, scraping.Job{ID: id}))
	}
	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, want, job.ID)
	}
	assert.Zero(t, q.Len())
}

func TestQueueDequeueTimeoutReturnsNil(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	start := time.Now()
	job, err := q.Dequeue(context.Background(), time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, job)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestQueueCancelation(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, q.Enqueue(ctx, scraping.Job{ID: "late"}), context.Canceled)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	require.NoError(t, q.Enqueue(context.Background(), scraping.Job{ID: "pending"}))

	blocked := make(chan error, 1)
	empty := NewQueue()
	go func() {
		_, err := empty.Dequeue(context.Background(), time.Minute)
		blocked <- err
	}()

	require.NoError(t, q.Close())
	_, err := q.Dequeue(context.Background(), time.Second)
	require.ErrorIs(t, err, queue.ErrClosed)
	require.ErrorIs(t, q.Enqueue(context.Background(), scraping.Job{ID: "late"}), queue.ErrClosed)
	// Closing twice should be safe.
	require.NoError(t, q.Close())

	require.NoError(t, empty.Close())
	select {
	case err := <-blocked:
		require.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("close did not wake blocked consumer")
	}
}
