package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// Extractor turns a navigated page into records.
type Extractor interface {
	Extract(ctx context.Context, page scraping.Page, job scraping.Job) (scraping.Records, error)
}

type pageSession interface {
	scraping.Page
	Navigate(ctx context.Context, url, waitFor string) error
	RunScripts(ctx context.Context, scripts []string) error
	UserAgent() string
	Close() error
}

// Scraper renders one job per browser session and extracts its records.
type Scraper struct {
	open      func(ctx context.Context) (pageSession, error)
	extractor Extractor
	logger    *zap.Logger
}

// NewScraper wires a Launcher and an Extractor.
func NewScraper(launcher *Launcher, extractor Extractor, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		open: func(ctx context.Context) (pageSession, error) {
			s, err := launcher.Open(ctx)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		extractor: extractor,
		logger:    logger,
	}
}

// Scrape opens a fresh session, navigates, runs the job's custom scripts and extracts.
// The session is closed on every path.
func (s *Scraper) Scrape(ctx context.Context, job scraping.Job) (scraping.Records, error) {
	session, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	s.logger.Debug("Browser session opened",
		zap.String("job_id", job.ID),
		zap.String("user_agent", session.UserAgent()),
	)
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.logger.Warn("Failed to close browser session", zap.String("job_id", job.ID), zap.Error(cerr))
		}
	}()

	if err := session.Navigate(ctx, job.URL, job.WaitForSelector); err != nil {
		return nil, err
	}
	if err := session.RunScripts(ctx, job.CustomScripts); err != nil {
		return nil, err
	}
	records, err := s.extractor.Extract(ctx, session, job)
	if err != nil {
		return nil, err
	}
	return records, nil
}
