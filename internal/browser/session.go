package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/metrics"
	"github.com/JakeFAU/scrapeworker/internal/policy/ratelimit"
	"github.com/JakeFAU/scrapeworker/internal/retry"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

var tracer = otel.Tracer("github.com/JakeFAU/scrapeworker/internal/browser")

// Launcher starts one isolated browser per session.
type Launcher struct {
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewLauncher creates a Launcher. A nil limiter disables per-host pacing.
func NewLauncher(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, limiter: limiter, logger: logger}
}

// Session is a single browser process with one stealth-configured tab.
// It is not safe for concurrent use.
type Session struct {
	cfg         Config
	userAgent   string
	limiter     *ratelimit.Limiter
	logger      *zap.Logger
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	mainFrame   cdp.FrameID
	lifecycle   *lifecycle
	closeOnce   sync.Once
}

// Open launches a browser, applies identity and stealth, and returns the ready tab.
// The session lives until Close or until ctx is canceled.
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	ua := pickUserAgent(l.cfg.UserAgents, nil)
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(ua),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         l.cfg,
		userAgent:   ua,
		limiter:     l.limiter,
		logger:      l.logger.With(zap.String("user_agent", ua)),
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		lifecycle:   newLifecycle(),
	}
	chromedp.ListenTarget(tabCtx, s.lifecycle.capture)

	setupCtx, cancel := context.WithTimeout(tabCtx, l.cfg.operationTimeout())
	defer cancel()
	if err := chromedp.Run(setupCtx, s.setupAction()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("browser setup: %w", err)
	}
	s.logger.Debug("Browser session opened", zap.Bool("headless", l.cfg.Headless))
	return s, nil
}

func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
		if err := emulation.SetUserAgentOverride(s.userAgent).
			WithAcceptLanguage(s.cfg.acceptLanguage()).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		s.mainFrame = tree.Frame.ID
		return nil
	})
}

// UserAgent reports the identity chosen for this session.
func (s *Session) UserAgent() string { return s.userAgent }

// Close tears down the tab, the browser and its process. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.tabCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("Browser cancel returned error", zap.Error(err))
		}
		s.cancelTab()
		s.cancelAlloc()
	})
	return nil
}

// Navigate loads url, waits for network idle and the optional selector, retrying the
// whole attempt with the configured backoff. Exhaustion yields *scraping.NavigationError.
func (s *Session) Navigate(ctx context.Context, url, waitFor string) error {
	ctx, span := tracer.Start(ctx, "browser.Navigate")
	span.SetAttributes(attribute.String("url", url))
	defer span.End()

	if err := s.limiter.Wait(ctx, url); err != nil {
		return fmt.Errorf("navigation pacing: %w", err)
	}
	err := navigateWithRetry(ctx, s.cfg.Retry, url, s.logger, func(ctx context.Context) error {
		return s.navigateOnce(ctx, url, waitFor)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
	}
	return err
}

func (s *Session) navigateOnce(ctx context.Context, url, waitFor string) error {
	attemptCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.navigationTimeout())
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	s.lifecycle.reset(s.mainFrame)
	actions := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.ActionFunc(s.lifecycle.waitNetworkIdle),
	}
	if waitFor != "" {
		actions = append(actions, chromedp.WaitVisible(waitFor, chromedp.ByQuery))
	}
	if err := chromedp.Run(attemptCtx, actions); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// RunScripts injects each script into the page as an inline script element, in order.
func (s *Session) RunScripts(ctx context.Context, scripts []string) error {
	for i, script := range scripts {
		if strings.TrimSpace(script) == "" {
			continue
		}
		if err := s.Evaluate(ctx, injectScriptFn, script, nil); err != nil {
			return fmt.Errorf("custom script %d: %w", i, err)
		}
	}
	return nil
}

const injectScriptFn = `(source) => {
  const el = document.createElement('script');
  el.textContent = source;
  (document.head || document.documentElement).appendChild(el);
  return true;
}`

// Evaluate runs script in the page and decodes its JSON result into out.
// Promises are awaited. A nil out discards the result.
func (s *Session) Evaluate(ctx context.Context, script string, arg any, out any) error {
	expr, err := buildExpression(script, arg)
	if err != nil {
		return err
	}
	evalCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.operationTimeout())
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var raw []byte
	err = chromedp.Run(evalCtx, chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

// HTML returns the outer HTML of the rendered document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	htmlCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.operationTimeout())
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(htmlCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document html: %w", err)
	}
	return html, nil
}

// navigateWithRetry wraps attempt in the retry policy and classifies the final failure.
func navigateWithRetry(ctx context.Context, policy retry.Policy, url string, logger *zap.Logger,
	attempt func(context.Context) error,
) error {
	made := 0
	err := retry.Do(ctx, policy, func(ctx context.Context, n int) error {
		made = n
		err := attempt(ctx)
		metrics.ObserveNavigation(url, err == nil)
		if err != nil {
			logger.Warn("Navigation attempt failed",
				zap.String("url", url),
				zap.Int("attempt", n),
				zap.Int("max_attempts", policy.Attempts()),
				zap.Error(err))
		}
		return err
	})
	if err == nil {
		return nil
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return &scraping.NavigationError{URL: url, Attempts: exhausted.Attempts, Err: exhausted.Err}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return &scraping.NavigationError{URL: url, Attempts: made, Err: err}
}

var arrowFn = regexp.MustCompile(`^(async\s+)?(\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`)

// buildExpression turns a function source into an invocation with the JSON-encoded arg.
// Anything else is evaluated as a plain expression.
func buildExpression(script string, arg any) (string, error) {
	trimmed := strings.TrimSpace(script)
	if trimmed == "" {
		return "", scraping.NewValidationError("empty script")
	}
	if !looksLikeFunction(trimmed) {
		return trimmed, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arg); err != nil {
		return "", fmt.Errorf("encode script argument: %w", err)
	}
	return fmt.Sprintf("(%s)(%s)", trimmed, bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func looksLikeFunction(src string) bool {
	return strings.HasPrefix(src, "function") ||
		strings.HasPrefix(src, "async function") ||
		arrowFn.MatchString(src)
}

// lifecycle tracks page lifecycle events of the main frame.
type lifecycle struct {
	mu     sync.Mutex
	frame  cdp.FrameID
	loader cdp.LoaderID
	idle   bool
	notify chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{notify: make(chan struct{}, 1)}
}

func (l *lifecycle) reset(frame cdp.FrameID) {
	l.mu.Lock()
	l.frame = frame
	l.loader = ""
	l.idle = false
	l.mu.Unlock()
}

func (l *lifecycle) capture(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frame != "" && e.FrameID != l.frame {
		return
	}
	switch e.Name {
	case "init":
		l.loader = e.LoaderID
		l.idle = false
	case "networkIdle":
		if l.loader != "" && e.LoaderID == l.loader {
			l.idle = true
			select {
			case l.notify <- struct{}{}:
			default:
			}
		}
	}
}

func (l *lifecycle) isIdle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idle
}

func (l *lifecycle) waitNetworkIdle(ctx context.Context) error {
	for {
		if l.isIdle() {
			return nil
		}
		select {
		case <-l.notify:
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		}
	}
}

// forwardCancel cancels a chromedp-derived context when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
