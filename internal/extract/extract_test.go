package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// fakePage serves a static document and a canned script result.
type fakePage struct {
	html       string
	result     any
	evalErr    error
	evaluated  []string
	htmlCalled int
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.htmlCalled++
	return p.html, nil
}

func (p *fakePage) Evaluate(_ context.Context, script string, _ any, out any) error {
	p.evaluated = append(p.evaluated, script)
	if p.evalErr != nil {
		return p.evalErr
	}
	raw, err := json.Marshal(p.result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func job(t scraping.ExtractionType, selectors map[string]string) scraping.Job {
	if selectors == nil {
		selectors = map[string]string{}
	}
	return scraping.Job{ID: "job-1", URL: "https://example.com", ExtractionType: t, Selectors: selectors}
}

const pricesTable = `<html><body>
<table id="other"><tr><td>ignore me</td></tr></table>
<table class="prices">
  <thead><tr><th>Item</th><th> Price </th><th></th></tr></thead>
  <tbody>
    <tr><td>Milk</td><td>$3.49</td><td>dairy</td></tr>
    <tr><td> </td><td></td><td></td></tr>
    <tr><td>Eggs
      (dozen)</td><td>$2.99</td></tr>
  </tbody>
</table></body></html>`

func TestTableExtraction(t *testing.T) {
	t.Parallel()

	ex := New(nil)
	records, err := ex.Extract(context.Background(), &fakePage{html: pricesTable},
		job(scraping.ExtractionTable, map[string]string{"table": "table.prices"}))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, scraping.Record{"Item": "Milk", "Price": "$3.49", "column_3": "dairy"}, records[0])
	assert.Equal(t, scraping.Record{"Item": "Eggs (dozen)", "Price": "$2.99", "column_3": ""}, records[1])
}

func TestTableExtractionDefaultsToFirstTable(t *testing.T) {
	t.Parallel()

	records, err := New(nil).Extract(context.Background(), &fakePage{html: pricesTable},
		job(scraping.ExtractionTable, nil))
	require.NoError(t, err)
	assert.Equal(t, scraping.Records{{"column_1": "ignore me"}}, records)
}

func TestTableExtractionRootSelectorAndMissingTable(t *testing.T) {
	t.Parallel()

	records, err := New(nil).Extract(context.Background(), &fakePage{html: pricesTable},
		job(scraping.ExtractionTable, map[string]string{"root": "#missing"}))
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestTableExtractionWithoutHeaderUsesAllRows(t *testing.T) {
	t.Parallel()

	html := `<table><tr><th>a</th><th>b</th></tr><tr><td>1</td><td>2</td></tr></table>`
	records, err := New(nil).Extract(context.Background(), &fakePage{html: html},
		job(scraping.ExtractionTable, nil))
	require.NoError(t, err)
	assert.Equal(t, scraping.Records{
		{"column_1": "a", "column_2": "b"},
		{"column_1": "1", "column_2": "2"},
	}, records)
}

func TestArticleExtraction(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Site title</title><style>p{}</style></head><body>
<nav>Menu</nav>
<article>
  <h2>Prices   rise again</h2>
  <p>Food prices rose   1.2%.</p>
  <script>track()</script>
  <p>Energy fell.<br>Rents flat.</p>
</article></body></html>`

	records, err := New(nil).Extract(context.Background(), &fakePage{html: html},
		job(scraping.ExtractionArticle, nil))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Prices rise again", records[0]["title"])
	assert.Equal(t, "Prices rise again\nFood prices rose 1.2%.\nEnergy fell.\nRents flat.", records[0]["content"])
}

func TestArticleExtractionFallsBackToBodyAndTitle(t *testing.T) {
	t.Parallel()

	html := `<html><head><title> Plain page </title></head><body><div>Just text</div></body></html>`
	records, err := New(nil).Extract(context.Background(), &fakePage{html: html},
		job(scraping.ExtractionArticle, nil))
	require.NoError(t, err)
	assert.Equal(t, scraping.Records{{"title": "Plain page", "content": "Just text"}}, records)
}

func TestArticleExtractionMissingRoot(t *testing.T) {
	t.Parallel()

	records, err := New(nil).Extract(context.Background(), &fakePage{html: `<body><p>x</p></body>`},
		job(scraping.ExtractionArticle, map[string]string{"article": ".story"}))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProductExtraction(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<ul class="breadcrumbs"><li>Home</li><li> </li><li>Dairy</li></ul>
<h1> Whole Milk </h1>
<span class="sale">$2.99</span>
<span class="price">$3.49</span>
<div class="description">Fresh milk.</div>
<img src="/a.jpg"><img alt="no src"><img src="/b.jpg">
</body></html>`

	records, err := New(nil).Extract(context.Background(), &fakePage{html: html},
		job(scraping.ExtractionProduct, map[string]string{"price": ".sale"}))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, scraping.Record{
		"name":        "Whole Milk",
		"price":       "$2.99",
		"description": "Fresh milk.",
		"breadcrumbs": []string{"Home", "Dairy"},
		"images":      []string{"/a.jpg", "/b.jpg"},
	}, records[0])
}

func TestProductExtractionEmptyPage(t *testing.T) {
	t.Parallel()

	records, err := New(nil).Extract(context.Background(), &fakePage{html: `<html></html>`},
		job(scraping.ExtractionProduct, nil))
	require.NoError(t, err)
	assert.Equal(t, scraping.Records{{
		"name": "", "price": "", "description": "",
		"breadcrumbs": []string{}, "images": []string{},
	}}, records)
}

func TestInvalidSelectorIsValidationError(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Extract(context.Background(), &fakePage{html: pricesTable},
		job(scraping.ExtractionTable, map[string]string{"table": "table[["}))
	require.ErrorIs(t, err, scraping.ErrValidation)
}

func TestCustomExtractionShapes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		result any
		want   scraping.Records
	}{
		{
			name:   "array of objects",
			result: []map[string]any{{"sku": "A1"}, {"sku": "B2"}},
			want:   scraping.Records{{"sku": "A1"}, {"sku": "B2"}},
		},
		{
			name:   "array of scalars",
			result: []any{"x", 2},
			want:   scraping.Records{{"value": "x"}, {"value": float64(2)}},
		},
		{
			name:   "single object",
			result: map[string]any{"title": "Hi"},
			want:   scraping.Records{{"title": "Hi"}},
		},
		{
			name:   "scalar",
			result: 42,
			want:   scraping.Records{{"value": float64(42)}},
		},
		{
			name:   "empty array",
			result: []any{},
			want:   scraping.Records{},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			page := &fakePage{result: tc.result}
			records, err := New(nil).Extract(context.Background(), page,
				job(scraping.ExtractionCustom, map[string]string{"script": "() => data"}))
			require.NoError(t, err)
			assert.Equal(t, tc.want, records)
			assert.Equal(t, []string{"() => data"}, page.evaluated)
			assert.Zero(t, page.htmlCalled)
		})
	}
}

func TestCustomExtractionRequiresScript(t *testing.T) {
	t.Parallel()

	page := &fakePage{}
	_, err := New(nil).Extract(context.Background(), page, job(scraping.ExtractionCustom, nil))
	require.ErrorIs(t, err, scraping.ErrValidation)
	assert.Contains(t, err.Error(), "'script' selector")
	assert.Empty(t, page.evaluated)

	require.ErrorIs(t, ValidateJob(job(scraping.ExtractionCustom, map[string]string{"script": "  "})), scraping.ErrValidation)
	require.NoError(t, ValidateJob(job(scraping.ExtractionTable, nil)))
}

func TestCustomExtractionGuardAndErrors(t *testing.T) {
	t.Parallel()

	guard := WithScriptGuard(func(string) error {
		return errors.New("fetch is not allowed")
	})
	page := &fakePage{}
	_, err := New(nil, guard).Extract(context.Background(), page,
		job(scraping.ExtractionCustom, map[string]string{"script": "fetch('/x')"}))
	require.ErrorIs(t, err, scraping.ErrValidation)
	assert.Empty(t, page.evaluated)

	page = &fakePage{evalErr: errors.New("ReferenceError: data is not defined")}
	_, err = New(nil).Extract(context.Background(), page,
		job(scraping.ExtractionCustom, map[string]string{"script": "data"}))
	require.ErrorContains(t, err, "ReferenceError")
}
