// Package catalog parses ingredient catalog files for bulk import.
package catalog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dukerupert/foodgram/internal/model"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported catalog file %q", path)
	}
}

// Import reads every ingredient from r. Blank rows are skipped; a row with
// only one of name or unit is an error naming the row.
func Import(r io.Reader, format Format) ([]model.Ingredient, error) {
	switch format {
	case FormatJSON:
		return importJSON(r)
	case FormatCSV:
		return importCSV(r)
	case FormatXLSX:
		return importXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
}

type jsonIngredient struct {
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
}

func importJSON(r io.Reader) ([]model.Ingredient, error) {
	var items []jsonIngredient
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var out []model.Ingredient
	for i, it := range items {
		ing, ok, err := row(i+1, it.Name, it.MeasurementUnit)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ing)
		}
	}
	return out, nil
}

func importCSV(r io.Reader) ([]model.Ingredient, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []model.Ingredient
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", n, err)
		}
		ing, ok, err := row(n, column(rec, 0), column(rec, 1))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ing)
		}
	}
	return out, nil
}

func importXLSX(r io.Reader) ([]model.Ingredient, error) {
	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("copy xlsx: %w", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	rows, err := f.Rows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	defer rows.Close()

	var out []model.Ingredient
	for n := 1; rows.Next(); n++ {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", n, err)
		}
		ing, ok, err := row(n, column(cols, 0), column(cols, 1))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ing)
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return out, nil
}

func column(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func row(n int, name, unit string) (model.Ingredient, bool, error) {
	name, unit = strings.TrimSpace(name), strings.TrimSpace(unit)
	if name == "" && unit == "" {
		return model.Ingredient{}, false, nil
	}
	if name == "" || unit == "" {
		return model.Ingredient{}, false, fmt.Errorf("row %d: name and measurement unit are required", n)
	}
	return model.Ingredient{Name: name, MeasurementUnit: unit}, true, nil
}
