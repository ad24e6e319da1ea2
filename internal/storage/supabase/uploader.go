// Package supabase uploads objects through the Supabase Storage REST API.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 30 * time.Second

// Config identifies the project, credentials and bucket.
type Config struct {
	URL     string
	Key     string
	Bucket  string
	Timeout time.Duration
}

// Enabled reports whether enough is configured to talk to Supabase.
func (c Config) Enabled() bool {
	return c.URL != "" && c.Key != "" && c.Bucket != ""
}

// Uploader writes objects to one Supabase Storage bucket.
type Uploader struct {
	client *resty.Client
	bucket string
}

// New creates an Uploader authenticated with the service key.
func New(cfg Config) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, errors.New("supabase url, key and bucket are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetAuthToken(cfg.Key).
		SetHeader("apikey", cfg.Key).
		SetTimeout(timeout)
	return &Uploader{client: client, bucket: cfg.Bucket}, nil
}

// Upload posts data to /storage/v1/object/{bucket}/{path}.
func (u *Uploader) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", strconv.FormatBool(upsert)).
		SetBody(data).
		Post(u.objectPath(path))
	if err != nil {
		return fmt.Errorf("supabase upload %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("supabase upload %s: status %d: %s", path, resp.StatusCode(), truncate(resp.String(), 256))
	}
	return nil
}

func (u *Uploader) objectPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/storage/v1/object/" + url.PathEscape(u.bucket) + "/" + strings.Join(segments, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
