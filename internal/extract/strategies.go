package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

func tableRecords(doc *goquery.Document, sel string) (scraping.Records, error) {
	if sel == "" {
		sel = "table"
	}
	tables, err := find(doc.Selection, sel)
	if err != nil {
		return nil, err
	}
	table := tables.First()
	records := scraping.Records{}
	if table.Length() == 0 {
		return records, nil
	}

	var headers []string
	table.Find("thead th").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, collapse(innerText(cell)))
	})
	rows := table.Find("tbody tr")
	if rows.Length() == 0 {
		rows = table.Find("tr")
	}

	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		size := max(len(headers), cells.Length())
		record := make(scraping.Record, size)
		filled := false
		for i := range size {
			header := ""
			if i < len(headers) {
				header = headers[i]
			}
			if header == "" {
				header = fmt.Sprintf("column_%d", i+1)
			}
			value := ""
			if i < cells.Length() {
				value = collapse(innerText(cells.Eq(i)))
			}
			if value != "" {
				filled = true
			}
			record[header] = value
		}
		if filled {
			records = append(records, record)
		}
	})
	return records, nil
}

func articleRecords(doc *goquery.Document, sel string) (scraping.Records, error) {
	var root *goquery.Selection
	if sel != "" {
		matches, err := find(doc.Selection, sel)
		if err != nil {
			return nil, err
		}
		root = matches.First()
	} else {
		root = doc.Find("article").First()
		if root.Length() == 0 {
			root = doc.Find("body").First()
		}
	}
	if root.Length() == 0 {
		return scraping.Records{}, nil
	}

	title := ""
	if heading := root.Find("h1, h2, h3").First(); heading.Length() > 0 {
		title = innerText(heading)
	} else {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return scraping.Records{{
		"title":   strings.TrimSpace(title),
		"content": innerText(root),
	}}, nil
}

var productDefaults = map[string]string{
	"name":        "h1",
	"price":       "[data-price], .price, .current-price",
	"description": "[data-description], .description, .product-description",
	"breadcrumbs": ".breadcrumbs li",
	"images":      "img",
}

func productRecords(doc *goquery.Document, overrides map[string]string) (scraping.Records, error) {
	sel := make(map[string]string, len(productDefaults))
	for key, def := range productDefaults {
		sel[key] = def
		if v := strings.TrimSpace(overrides[key]); v != "" {
			sel[key] = v
		}
	}

	text := func(key string) (string, error) {
		matches, err := find(doc.Selection, sel[key])
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(matches.First().Text()), nil
	}
	name, err := text("name")
	if err != nil {
		return nil, err
	}
	price, err := text("price")
	if err != nil {
		return nil, err
	}
	description, err := text("description")
	if err != nil {
		return nil, err
	}

	crumbNodes, err := find(doc.Selection, sel["breadcrumbs"])
	if err != nil {
		return nil, err
	}
	breadcrumbs := []string{}
	crumbNodes.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			breadcrumbs = append(breadcrumbs, t)
		}
	})

	imageNodes, err := find(doc.Selection, sel["images"])
	if err != nil {
		return nil, err
	}
	images := []string{}
	imageNodes.Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			images = append(images, src)
		}
	})

	return scraping.Records{{
		"name":        name,
		"price":       price,
		"description": description,
		"breadcrumbs": breadcrumbs,
		"images":      images,
	}}, nil
}
