// Package storage persists dataset artifacts and job status snapshots to object storage.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/metrics"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// StatusContentType is the content type of status snapshots.
const StatusContentType = "application/json"

// Uploader writes one object. With upsert false an existing object must not be replaced.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error
}

// Client implements scraping.StorageClient on top of an Uploader using deterministic paths.
type Client struct {
	uploader Uploader
	logger   *zap.Logger
}

// New creates a Client.
func New(uploader Uploader, logger *zap.Logger) (*Client, error) {
	if uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{uploader: uploader, logger: logger}, nil
}

// PersistDataset uploads every artifact and returns format -> object path.
// The first failing upload aborts with a *scraping.StorageError.
func (c *Client) PersistDataset(ctx context.Context, job scraping.Job, artifacts scraping.Artifacts) (map[string]string, error) {
	formats := make([]string, 0, len(artifacts))
	for format := range artifacts {
		formats = append(formats, format)
	}
	sort.Strings(formats)

	stored := make(map[string]string, len(formats))
	for _, format := range formats {
		artifact := artifacts[format]
		path := scraping.DatasetPath(job, format)
		if err := c.upload(ctx, "dataset", path, artifact.Data, artifact.ContentType); err != nil {
			return nil, err
		}
		stored[format] = path
	}
	return stored, nil
}

// UpdateStatus overwrites the job's status snapshot.
func (c *Client) UpdateStatus(ctx context.Context, status scraping.JobStatus) error {
	body, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status for job %s: %w", status.JobID, err)
	}
	return c.upload(ctx, "status", scraping.StatusPath(status.JobID), body, StatusContentType)
}

func (c *Client) upload(ctx context.Context, kind, path string, data []byte, contentType string) error {
	err := c.uploader.Upload(ctx, path, data, contentType, true)
	metrics.ObserveUpload(kind, err == nil)
	if err != nil {
		c.logger.Error("Upload failed", zap.String("path", path), zap.String("kind", kind), zap.Error(err))
		return &scraping.StorageError{Path: path, Err: err}
	}
	c.logger.Debug("Uploaded object", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
