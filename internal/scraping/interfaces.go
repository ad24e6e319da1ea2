package scraping

import (
	"context"
	"time"
)

// JobQueue is a blocking FIFO broker of jobs.
// Delivery is at-most-once: a job handed to a worker is gone from the queue.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue waits up to timeout for a job. A timeout returns (nil, nil).
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Close() error
}

// StorageClient persists dataset artifacts and status snapshots.
type StorageClient interface {
	// PersistDataset stores every artifact and returns format -> stored path.
	PersistDataset(ctx context.Context, job Job, artifacts Artifacts) (map[string]string, error)
	UpdateStatus(ctx context.Context, status JobStatus) error
}

// Page is the scripting surface of a rendered page.
type Page interface {
	// Evaluate runs script in the page, passing arg when the script is a function,
	// and decodes the JSON result into out.
	Evaluate(ctx context.Context, script string, arg any, out any) error
	// HTML returns the outer HTML of the rendered document.
	HTML(ctx context.Context) (string, error)
}

// Scraper renders a job's page and extracts its records.
type Scraper interface {
	Scrape(ctx context.Context, job Job) (Records, error)
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
