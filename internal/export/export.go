// Package export serializes record sets into downloadable dataset artifacts.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// Normalized format names.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Content types per normalized format.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

const sheetName = "Sheet1"

// Normalize maps a requested format (case-insensitive, with aliases) to its canonical name.
func Normalize(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "xls", "excel":
		return FormatXLSX, nil
	default:
		return "", scraping.NewValidationError(fmt.Sprintf("unsupported export format: %s", format))
	}
}

// ValidateFormats checks every requested format without serializing anything.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if _, err := Normalize(f); err != nil {
			return err
		}
	}
	return nil
}

// Build serializes records once per distinct normalized format.
func Build(records scraping.Records, formats []string) (scraping.Artifacts, error) {
	artifacts := make(scraping.Artifacts, len(formats))
	for _, requested := range formats {
		format, err := Normalize(requested)
		if err != nil {
			return nil, err
		}
		if _, done := artifacts[format]; done {
			continue
		}
		var artifact scraping.Artifact
		switch format {
		case FormatJSON:
			artifact, err = toJSON(records)
		case FormatCSV:
			artifact, err = toCSV(records)
		case FormatXLSX:
			artifact, err = toXLSX(records)
		}
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", format, err)
		}
		artifacts[format] = artifact
	}
	return artifacts, nil
}

func toJSON(records scraping.Records) (scraping.Artifact, error) {
	if records == nil {
		records = scraping.Records{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return scraping.Artifact{}, err
	}
	return scraping.Artifact{
		Data:        bytes.TrimRight(buf.Bytes(), "\n"),
		ContentType: ContentTypeJSON,
	}, nil
}

func toCSV(records scraping.Records) (scraping.Artifact, error) {
	header := columns(records)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return scraping.Artifact{}, err
	}
	row := make([]string, len(header))
	for _, record := range records {
		for i, key := range header {
			cell, err := cellText(record[key])
			if err != nil {
				return scraping.Artifact{}, fmt.Errorf("column %s: %w", key, err)
			}
			row[i] = cell
		}
		if err := w.Write(row); err != nil {
			return scraping.Artifact{}, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return scraping.Artifact{}, err
	}
	return scraping.Artifact{Data: buf.Bytes(), ContentType: ContentTypeCSV}, nil
}

func toXLSX(records scraping.Records) (scraping.Artifact, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := columns(records)
	for i, key := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return scraping.Artifact{}, err
		}
		if err := f.SetCellValue(sheetName, cell, key); err != nil {
			return scraping.Artifact{}, err
		}
	}
	for r, record := range records {
		for c, key := range header {
			value, ok := record[key]
			if !ok || value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return scraping.Artifact{}, err
			}
			v, err := sheetValue(value)
			if err != nil {
				return scraping.Artifact{}, fmt.Errorf("column %s: %w", key, err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return scraping.Artifact{}, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return scraping.Artifact{}, fmt.Errorf("write workbook: %w", err)
	}
	return scraping.Artifact{Data: buf.Bytes(), ContentType: ContentTypeXLSX}, nil
}

// columns is the sorted union of keys across records.
func columns(records scraping.Records) []string {
	seen := map[string]struct{}{}
	for _, record := range records {
		for key := range record {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cellText(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case bool, int, int32, int64, json.Number:
		return fmt.Sprint(val), nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// sheetValue keeps scalars native and flattens composite values to JSON text.
func sheetValue(v any) (any, error) {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return v, nil
	default:
		return cellText(v)
	}
}
