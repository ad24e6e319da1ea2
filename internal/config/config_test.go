package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapeworker/internal/browser"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, QueueRedis, cfg.Queue.Provider)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Queue.Redis.URL)
	assert.Equal(t, "scraping-jobs", cfg.Queue.Redis.Name)
	assert.Equal(t, StorageAuto, cfg.Storage.Provider)
	assert.Equal(t, "scraping-datasets", cfg.Storage.Bucket)
	assert.False(t, cfg.Storage.Supabase.Enabled())
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, browser.DefaultUserAgents, cfg.Browser.UserAgents)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, time.Second, cfg.Worker.DequeueTimeout)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, policy.Schedule())

	settings := cfg.BrowserSettings()
	assert.Equal(t, 30*time.Second, settings.NavigationTimeout)
	assert.Equal(t, 30*time.Second, settings.OperationTimeout)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
queue:
  provider: sqs
  sqs:
    queue_url: https://sqs.us-east-1.amazonaws.com/123456789012/jobs.fifo
    region: us-east-1
storage:
  provider: s3
  bucket: datasets
  s3:
    endpoint: http://localhost:9000
    path_style: true
browser:
  headless: false
  navigation_timeout_ms: 15000
  user_agents:
    - agent-one
    - agent-two
  domain_qps: 0.5
retry:
  max_attempts: 5
  base_backoff_seconds: 0.25
  backoff_factor: 3
worker:
  concurrency: 4
  poll_interval: 2s
server:
  enabled: true
  port: 9090
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, QueueSQS, cfg.Queue.Provider)
	assert.Equal(t, "us-east-1", cfg.Queue.SQS.Region)
	assert.Equal(t, StorageS3, cfg.Storage.Provider)
	assert.True(t, cfg.Storage.S3.PathStyle)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"agent-one", "agent-two"}, cfg.Browser.UserAgents)
	assert.InDelta(t, 0.5, cfg.Browser.DomainQPS, 1e-9)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Logging.Development)

	policy := cfg.RetryPolicy()
	assert.Equal(t, []time.Duration{
		250 * time.Millisecond,
		750 * time.Millisecond,
		2250 * time.Millisecond,
		6750 * time.Millisecond,
	}, policy.Schedule())
	assert.Equal(t, 15*time.Second, cfg.BrowserSettings().NavigationTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCRAPER_QUEUE_PROVIDER", "memory")
	t.Setenv("SCRAPER_WORKER_CONCURRENCY", "3")
	t.Setenv("SCRAPER_BROWSER_USER_AGENTS", "Mozilla/5.0 (X11, Linux) A | Mozilla/5.0 B")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, QueueMemory, cfg.Queue.Provider)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.Equal(t, []string{"Mozilla/5.0 (X11, Linux) A", "Mozilla/5.0 B"}, cfg.Browser.UserAgents)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("SCRAPING_QUEUE", "jobs")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_KEY", "service-key")
	t.Setenv("SUPABASE_BUCKET", "exports")
	t.Setenv("PLAYWRIGHT_HEADLESS", "false")
	t.Setenv("SCRAPING_MAX_RETRIES", "4")
	t.Setenv("SCRAPING_BASE_BACKOFF_SECONDS", "0.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/2", cfg.Queue.Redis.URL)
	assert.Equal(t, "jobs", cfg.Queue.Redis.Name)
	assert.True(t, cfg.Storage.Supabase.Enabled())
	assert.Equal(t, "exports", cfg.Storage.Bucket)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryPolicy().BaseDelay)
}

func TestPrefixedEnvWinsOverLegacyName(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://legacy:6379/0")
	t.Setenv("SCRAPER_QUEUE_REDIS_URL", "redis://prefixed:6379/0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis://prefixed:6379/0", cfg.Queue.Redis.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown queue", func(c *Config) { c.Queue.Provider = "kafka" }, "unsupported queue.provider"},
		{"sqs without url", func(c *Config) { c.Queue.Provider = QueueSQS }, "queue.sqs.queue_url"},
		{"redis without name", func(c *Config) { c.Queue.Redis.Name = "" }, "queue.redis"},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "ftp" }, "unsupported storage.provider"},
		{"supabase without key", func(c *Config) { c.Storage.Provider = StorageSupabase }, "storage.supabase"},
		{"gcs without bucket", func(c *Config) {
			c.Storage.Provider = StorageGCS
			c.Storage.Bucket = ""
		}, "storage.bucket"},
		{"local without dir", func(c *Config) { c.Storage.Provider = StorageLocal }, "storage.local.base_dir"},
		{"zero navigation timeout", func(c *Config) { c.Browser.NavigationTimeoutMS = 0 }, "navigation_timeout_ms"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"zero factor", func(c *Config) { c.Retry.BackoffFactor = 0 }, "retry.backoff_factor"},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, "worker.concurrency"},
		{"server without port", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = 0
		}, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
