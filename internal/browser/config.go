// Package browser drives headless Chrome through chromedp for one job at a time.
package browser

import (
	"math/rand/v2"
	"time"

	"github.com/JakeFAU/scrapeworker/internal/retry"
)

// DefaultUserAgents is the identity pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// DefaultAcceptLanguage is sent with every request unless overridden.
const DefaultAcceptLanguage = "en-US,en;q=0.9"

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultOperationTimeout  = 30 * time.Second
)

// Config controls browser launch, identity and navigation behavior.
type Config struct {
	Headless          bool
	NavigationTimeout time.Duration
	OperationTimeout  time.Duration
	UserAgents        []string
	AcceptLanguage    string
	ExecPath          string
	Retry             retry.Policy
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout > 0 {
		return c.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (c Config) operationTimeout() time.Duration {
	if c.OperationTimeout > 0 {
		return c.OperationTimeout
	}
	return defaultOperationTimeout
}

func (c Config) acceptLanguage() string {
	if c.AcceptLanguage != "" {
		return c.AcceptLanguage
	}
	return DefaultAcceptLanguage
}

// pickUserAgent returns a uniformly random entry of pool, or of DefaultUserAgents when empty.
func pickUserAgent(pool []string, intn func(int) int) string {
	if len(pool) == 0 {
		pool = DefaultUserAgents
	}
	if intn == nil {
		intn = rand.IntN
	}
	return pool[intn(len(pool))]
}
