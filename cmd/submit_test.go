package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/config"
	"github.com/JakeFAU/scrapeworker/internal/queue/memory"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

type fixedIDs struct {
	id  string
	err error
}

func (f fixedIDs) NewID() (string, error) { return f.id, f.err }

// keepOpen ignores Close so tests can inspect the queue after the command returns.
type keepOpen struct {
	scraping.JobQueue
}

func (keepOpen) Close() error { return nil }

func TestSubmitJobAssignsID(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue()
	job, err := submitJob(context.Background(), q,
		[]byte(`{"url":"https://example.com","extraction_type":"table"}`),
		fixedIDs{id: "generated-id"})
	require.NoError(t, err)
	assert.Equal(t, "generated-id", job.ID)
	assert.Equal(t, []string{"json"}, job.ExportFormats)

	queued, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, "generated-id", queued.ID)
	assert.Equal(t, scraping.ExtractionTable, queued.ExtractionType)
}

func TestSubmitJobKeepsProvidedID(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue()
	job, err := submitJob(context.Background(), q,
		[]byte(`{"id":"mine","url":"https://example.com","extraction_type":"article"}`),
		fixedIDs{err: errors.New("must not be called")})
	require.NoError(t, err)
	assert.Equal(t, "mine", job.ID)
}

func TestSubmitJobRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{"url":`},
		{"missing url", `{"extraction_type":"table"}`},
		{"unknown extraction", `{"url":"https://example.com","extraction_type":"sitemap"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := memory.NewQueue()
			_, err := submitJob(context.Background(), q, []byte(tt.payload), fixedIDs{id: "x"})
			require.Error(t, err)

			queued, err := q.Dequeue(context.Background(), time.Millisecond)
			require.NoError(t, err)
			assert.Nil(t, queued)
		})
	}
}

func TestSubmitJobIDFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("entropy exhausted")
	_, err := submitJob(context.Background(), memory.NewQueue(),
		[]byte(`{"url":"https://example.com","extraction_type":"table"}`),
		fixedIDs{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestSubmitCommand(t *testing.T) {
	t.Setenv("SCRAPER_QUEUE_PROVIDER", "memory")

	q := memory.NewQueue()
	orig := newQueue
	newQueue = func(context.Context, config.QueueConfig, *zap.Logger) (scraping.JobQueue, error) {
		return keepOpen{q}, nil
	}
	t.Cleanup(func() { newQueue = orig })

	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"url": "https://example.com/products",
		"extraction_type": "product",
		"export_formats": ["csv", "excel"],
		"selectors": {"price": ".price"}
	}`), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"submit", path})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var printed map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	assert.NotEmpty(t, printed["id"])
	assert.Equal(t, "product", printed["extraction_type"])

	queued, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, printed["id"], queued.ID)
	assert.Equal(t, ".price", queued.Selectors["price"])
}

func TestSubmitCommandMissingFile(t *testing.T) {
	t.Setenv("SCRAPER_QUEUE_PROVIDER", "memory")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"submit", filepath.Join(t.TempDir(), "nope.json")})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read job file")
}

func TestWorkerCommandRejectsBadConcurrency(t *testing.T) {
	t.Setenv("SCRAPER_QUEUE_PROVIDER", "memory")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"worker", "--concurrency", "0"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.concurrency")
}
