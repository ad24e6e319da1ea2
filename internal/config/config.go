// Package config loads and validates worker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/JakeFAU/scrapeworker/internal/browser"
	"github.com/JakeFAU/scrapeworker/internal/retry"
)

// EnvPrefix namespaces environment overrides, e.g. SCRAPER_QUEUE_PROVIDER.
const EnvPrefix = "SCRAPER"

// ListSeparator splits list values supplied as a single string. User agents contain
// commas, so lists use a pipe.
const ListSeparator = "|"

// Queue providers.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
	QueueSQS    = "sqs"
)

// Storage providers. An empty provider selects Supabase when it is configured and
// memory otherwise.
const (
	StorageAuto     = ""
	StorageMemory   = "memory"
	StorageSupabase = "supabase"
	StorageGCS      = "gcs"
	StorageS3       = "s3"
	StorageLocal    = "local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Storage StorageConfig `mapstructure:"storage"`
	Browser BrowserConfig `mapstructure:"browser"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// QueueConfig selects and configures the job broker.
type QueueConfig struct {
	Provider string      `mapstructure:"provider"`
	Redis    RedisConfig `mapstructure:"redis"`
	SQS      SQSConfig   `mapstructure:"sqs"`
}

// RedisConfig points at a Redis list.
type RedisConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

// SQSConfig points at an SQS queue.
type SQSConfig struct {
	QueueURL string `mapstructure:"queue_url"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// StorageConfig selects and configures artifact persistence.
type StorageConfig struct {
	Provider string         `mapstructure:"provider"`
	Bucket   string         `mapstructure:"bucket"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	S3       S3Config       `mapstructure:"s3"`
	Local    LocalConfig    `mapstructure:"local"`
}

// SupabaseConfig holds Supabase Storage credentials.
type SupabaseConfig struct {
	URL     string        `mapstructure:"url"`
	Key     string        `mapstructure:"key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether URL and key are both present.
func (c SupabaseConfig) Enabled() bool {
	return c.URL != "" && c.Key != ""
}

// S3Config configures S3-compatible endpoints such as MinIO.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// LocalConfig stores artifacts on the filesystem.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// BrowserConfig configures headless Chrome.
type BrowserConfig struct {
	Headless            bool     `mapstructure:"headless"`
	NavigationTimeoutMS int      `mapstructure:"navigation_timeout_ms"`
	OperationTimeoutMS  int      `mapstructure:"operation_timeout_ms"`
	UserAgents          []string `mapstructure:"user_agents"`
	AcceptLanguage      string   `mapstructure:"accept_language"`
	ExecPath            string   `mapstructure:"exec_path"`
	DomainQPS           float64  `mapstructure:"domain_qps"`
	DomainBurst         int      `mapstructure:"domain_burst"`
}

// RetryConfig controls navigation retries.
type RetryConfig struct {
	MaxAttempts        int     `mapstructure:"max_attempts"`
	BaseBackoffSeconds float64 `mapstructure:"base_backoff_seconds"`
	BackoffFactor      float64 `mapstructure:"backoff_factor"`
}

// WorkerConfig controls the polling loop.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// envAliases binds the legacy variable names next to the prefixed ones.
var envAliases = map[string]string{
	"queue.redis.url":               "REDIS_URL",
	"queue.redis.name":              "SCRAPING_QUEUE",
	"storage.supabase.url":          "SUPABASE_URL",
	"storage.supabase.key":          "SUPABASE_KEY",
	"storage.bucket":                "SUPABASE_BUCKET",
	"browser.headless":              "PLAYWRIGHT_HEADLESS",
	"browser.navigation_timeout_ms": "PLAYWRIGHT_NAVIGATION_TIMEOUT_MS",
	"browser.operation_timeout_ms":  "PLAYWRIGHT_REQUEST_TIMEOUT_MS",
	"browser.user_agents":           "SCRAPING_USER_AGENTS",
	"retry.max_attempts":            "SCRAPING_MAX_RETRIES",
	"retry.backoff_factor":          "SCRAPING_BACKOFF_FACTOR",
	"retry.base_backoff_seconds":    "SCRAPING_BASE_BACKOFF_SECONDS",
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(ListSeparator),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Browser.UserAgents = trimList(cfg.Browser.UserAgents)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func bindAliases(v *viper.Viper) error {
	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.provider", QueueRedis)
	v.SetDefault("queue.redis.url", "redis://localhost:6379/0")
	v.SetDefault("queue.redis.name", "scraping-jobs")
	v.SetDefault("queue.sqs.queue_url", "")
	v.SetDefault("queue.sqs.region", "")
	v.SetDefault("queue.sqs.endpoint", "")
	v.SetDefault("storage.provider", StorageAuto)
	v.SetDefault("storage.bucket", "scraping-datasets")
	v.SetDefault("storage.supabase.url", "")
	v.SetDefault("storage.supabase.key", "")
	v.SetDefault("storage.supabase.timeout", "30s")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.path_style", false)
	v.SetDefault("storage.local.base_dir", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout_ms", 30_000)
	v.SetDefault("browser.operation_timeout_ms", 30_000)
	v.SetDefault("browser.user_agents", browser.DefaultUserAgents)
	v.SetDefault("browser.accept_language", browser.DefaultAcceptLanguage)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.domain_qps", 0.0)
	v.SetDefault("browser.domain_burst", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_backoff_seconds", 1.0)
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.poll_interval", "500ms")
	v.SetDefault("worker.dequeue_timeout", "1s")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Queue.Provider {
	case QueueMemory:
	case QueueRedis:
		if c.Queue.Redis.URL == "" || c.Queue.Redis.Name == "" {
			return fmt.Errorf("queue.redis.url and queue.redis.name are required for the redis queue")
		}
	case QueueSQS:
		if c.Queue.SQS.QueueURL == "" {
			return fmt.Errorf("queue.sqs.queue_url is required for the sqs queue")
		}
	default:
		return fmt.Errorf("unsupported queue.provider %q", c.Queue.Provider)
	}

	switch c.Storage.Provider {
	case StorageAuto, StorageMemory:
	case StorageSupabase:
		if !c.Storage.Supabase.Enabled() || c.Storage.Bucket == "" {
			return fmt.Errorf("storage.supabase.url, storage.supabase.key and storage.bucket are required for supabase")
		}
	case StorageGCS, StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for %s", c.Storage.Provider)
		}
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for local storage")
		}
	default:
		return fmt.Errorf("unsupported storage.provider %q", c.Storage.Provider)
	}

	if c.Browser.NavigationTimeoutMS <= 0 {
		return fmt.Errorf("browser.navigation_timeout_ms must be > 0")
	}
	if c.Browser.OperationTimeoutMS <= 0 {
		return fmt.Errorf("browser.operation_timeout_ms must be > 0")
	}
	if c.Browser.DomainQPS < 0 {
		return fmt.Errorf("browser.domain_qps must be >= 0")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseBackoffSeconds < 0 {
		return fmt.Errorf("retry.base_backoff_seconds must be >= 0")
	}
	if c.Retry.BackoffFactor <= 0 {
		return fmt.Errorf("retry.backoff_factor must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// RetryPolicy converts the retry section into a navigation policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseBackoffSeconds * float64(time.Second)),
		Factor:      c.Retry.BackoffFactor,
	}
}

// BrowserSettings converts the browser section into launcher settings.
func (c Config) BrowserSettings() browser.Config {
	return browser.Config{
		Headless:          c.Browser.Headless,
		NavigationTimeout: time.Duration(c.Browser.NavigationTimeoutMS) * time.Millisecond,
		OperationTimeout:  time.Duration(c.Browser.OperationTimeoutMS) * time.Millisecond,
		UserAgents:        c.Browser.UserAgents,
		AcceptLanguage:    c.Browser.AcceptLanguage,
		ExecPath:          c.Browser.ExecPath,
		Retry:             c.RetryPolicy(),
	}
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
