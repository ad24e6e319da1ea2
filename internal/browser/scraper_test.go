package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

type fakeSession struct {
	navigateErr error
	navigated   []string
	scripts     []string
	closed      int
}

func (f *fakeSession) Evaluate(context.Context, string, any, any) error { return nil }
func (f *fakeSession) HTML(context.Context) (string, error)             { return "<html></html>", nil }
func (f *fakeSession) Close() error                                     { f.closed++; return nil }
func (f *fakeSession) UserAgent() string                                { return "test-agent/1.0" }

func (f *fakeSession) Navigate(_ context.Context, url, waitFor string) error {
	f.navigated = append(f.navigated, url+"|"+waitFor)
	return f.navigateErr
}

func (f *fakeSession) RunScripts(_ context.Context, scripts []string) error {
	f.scripts = append(f.scripts, scripts...)
	return nil
}

type extractorFunc func(context.Context, scraping.Page, scraping.Job) (scraping.Records, error)

func (f extractorFunc) Extract(ctx context.Context, p scraping.Page, j scraping.Job) (scraping.Records, error) {
	return f(ctx, p, j)
}

func newTestScraper(session *fakeSession, ex Extractor) *Scraper {
	return &Scraper{
		open:      func(context.Context) (pageSession, error) { return session, nil },
		extractor: ex,
		logger:    zap.NewNop(),
	}
}

func TestScraperHappyPath(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	scraper := newTestScraper(session, extractorFunc(func(_ context.Context, p scraping.Page, _ scraping.Job) (scraping.Records, error) {
		assert.Same(t, session, p)
		return scraping.Records{{"title": "Hello"}}, nil
	}))

	records, err := scraper.Scrape(context.Background(), scraping.Job{
		ID:              "job-1",
		URL:             "https://example.com",
		ExtractionType:  scraping.ExtractionArticle,
		WaitForSelector: "#main",
		CustomScripts:   []string{"window.a = 1", "window.b = 2"},
	})
	require.NoError(t, err)
	assert.Equal(t, scraping.Records{{"title": "Hello"}}, records)
	assert.Equal(t, []string{"https://example.com|#main"}, session.navigated)
	assert.Equal(t, []string{"window.a = 1", "window.b = 2"}, session.scripts)
	assert.Equal(t, 1, session.closed)
}

func TestScraperLogsSessionUserAgent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	scraper := newTestScraper(&fakeSession{}, extractorFunc(func(context.Context, scraping.Page, scraping.Job) (scraping.Records, error) {
		return scraping.Records{}, nil
	}))
	scraper.logger = zap.New(core)

	_, err := scraper.Scrape(context.Background(), scraping.Job{ID: "job-ua", URL: "https://example.com"})
	require.NoError(t, err)

	opened := logs.FilterMessage("Browser session opened").All()
	require.Len(t, opened, 1)
	assert.Equal(t, "test-agent/1.0", opened[0].ContextMap()["user_agent"])
	assert.Equal(t, "job-ua", opened[0].ContextMap()["job_id"])
}

func TestScraperClosesSessionOnNavigationFailure(t *testing.T) {
	t.Parallel()

	navErr := &scraping.NavigationError{URL: "https://down.test", Attempts: 3, Err: errors.New("timeout")}
	session := &fakeSession{navigateErr: navErr}
	extracted := false
	scraper := newTestScraper(session, extractorFunc(func(context.Context, scraping.Page, scraping.Job) (scraping.Records, error) {
		extracted = true
		return nil, nil
	}))

	_, err := scraper.Scrape(context.Background(), scraping.Job{ID: "job-2", URL: "https://down.test"})
	require.ErrorIs(t, err, scraping.ErrNavigation)
	assert.False(t, extracted)
	assert.Empty(t, session.scripts)
	assert.Equal(t, 1, session.closed)
}

func TestScraperOpenFailure(t *testing.T) {
	t.Parallel()

	scraper := &Scraper{
		open:   func(context.Context) (pageSession, error) { return nil, errors.New("chrome not found") },
		logger: zap.NewNop(),
	}
	_, err := scraper.Scrape(context.Background(), scraping.Job{ID: "job-3"})
	require.ErrorContains(t, err, "open browser session")
}
