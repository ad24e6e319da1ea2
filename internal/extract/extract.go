// Package extract turns a rendered page into records using the job's extraction strategy.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// ScriptGuard inspects caller-supplied script before it reaches the page.
// Returning an error rejects the job.
type ScriptGuard func(script string) error

// AllowAll is the default guard. Scripts are forwarded unmodified.
func AllowAll(string) error { return nil }

// Option configures an Extractor.
type Option func(*Extractor)

// WithScriptGuard installs a guard for custom extraction scripts.
func WithScriptGuard(guard ScriptGuard) Option {
	return func(e *Extractor) {
		if guard != nil {
			e.guard = guard
		}
	}
}

// Extractor dispatches on a job's extraction type.
type Extractor struct {
	guard  ScriptGuard
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{guard: AllowAll, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateJob reports configuration errors that can be detected without a page.
func ValidateJob(job scraping.Job) error {
	if job.ExtractionType == scraping.ExtractionCustom && job.Selector("script") == "" {
		return scraping.NewValidationError("custom extraction requires a 'script' selector")
	}
	return nil
}

// Extract runs the job's strategy against an already navigated page.
func (e *Extractor) Extract(ctx context.Context, page scraping.Page, job scraping.Job) (scraping.Records, error) {
	if err := ValidateJob(job); err != nil {
		return nil, err
	}
	var (
		records scraping.Records
		err     error
	)
	switch job.ExtractionType {
	case scraping.ExtractionTable:
		records, err = e.withDocument(ctx, page, func(doc *goquery.Document) (scraping.Records, error) {
			return tableRecords(doc, job.Selector("table", "root"))
		})
	case scraping.ExtractionArticle:
		records, err = e.withDocument(ctx, page, func(doc *goquery.Document) (scraping.Records, error) {
			return articleRecords(doc, job.Selector("article", "root"))
		})
	case scraping.ExtractionProduct:
		records, err = e.withDocument(ctx, page, func(doc *goquery.Document) (scraping.Records, error) {
			return productRecords(doc, job.Selectors)
		})
	case scraping.ExtractionCustom:
		records, err = e.custom(ctx, page, job.Selector("script"))
	default:
		return nil, scraping.NewValidationError(fmt.Sprintf("unsupported extraction type: %q", job.ExtractionType))
	}
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Extracted records",
		zap.String("job_id", job.ID),
		zap.String("extraction_type", string(job.ExtractionType)),
		zap.Int("records", len(records)))
	return records, nil
}

func (e *Extractor) withDocument(ctx context.Context, page scraping.Page,
	fn func(*goquery.Document) (scraping.Records, error),
) (scraping.Records, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return fn(doc)
}

func (e *Extractor) custom(ctx context.Context, page scraping.Page, script string) (scraping.Records, error) {
	if err := e.guard(script); err != nil {
		return nil, scraping.NewValidationError(fmt.Sprintf("custom script rejected: %v", err))
	}
	var result any
	if err := page.Evaluate(ctx, script, nil, &result); err != nil {
		return nil, fmt.Errorf("custom extraction: %w", err)
	}
	return toRecords(result), nil
}

// toRecords maps an arbitrary script result onto records. Objects are kept, other
// values are wrapped as {"value": v}, and a non-array result yields one record.
func toRecords(result any) scraping.Records {
	items, ok := result.([]any)
	if !ok {
		return scraping.Records{toRecord(result)}
	}
	records := make(scraping.Records, 0, len(items))
	for _, item := range items {
		records = append(records, toRecord(item))
	}
	return records
}

func toRecord(v any) scraping.Record {
	if obj, ok := v.(map[string]any); ok {
		return scraping.Record(obj)
	}
	return scraping.Record{"value": v}
}
