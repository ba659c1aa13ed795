package shopping

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Format is a shopping list download format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a query value to a Format. An empty value selects PDF.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPDF, nil
	case "txt", "text":
		return FormatText, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// ContentType is the HTTP Content-Type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/pdf"
	}
}

// Filename is the download name, e.g. "shopping_list.pdf".
func (f Format) Filename() string {
	return "shopping_list." + string(f)
}

// ContentDisposition is inline for an empty report and an attachment
// otherwise.
func ContentDisposition(r *Report, f Format) string {
	if r.Empty() {
		return "inline"
	}
	return fmt.Sprintf("attachment; filename=%q", f.Filename())
}

// Render writes the report to w in the given format.
func Render(w io.Writer, r *Report, f Format) error {
	var err error
	switch f {
	case FormatPDF:
		err = renderPDF(w, r)
	case FormatText:
		err = renderText(w, r)
	case FormatXLSX:
		err = renderXLSX(w, r)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return err
	}
	listsRendered.WithLabelValues(string(f), strconv.FormatBool(r.Empty())).Inc()
	return nil
}

func renderText(w io.Writer, r *Report) error {
	var buf bytes.Buffer
	for _, line := range r.Lines() {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write text: %w", err)
	}
	return nil
}

// pdfFont is registered from the Go fonts, which cover Latin and Cyrillic.
const pdfFont = "Go"

func renderPDF(w io.Writer, r *Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(pdfFont, "", goregular.TTF)
	pdf.AddUTF8FontFromBytes(pdfFont, "B", gobold.TTF)
	pdf.SetTitle(Title, true)
	pdf.AddPage()

	lines := r.Lines()
	pdf.SetFont(pdfFont, "B", 16)
	pdf.CellFormat(0, 12, lines[0], "", 1, "L", false, 0, "")

	pdf.SetFont(pdfFont, "", 12)
	for _, line := range lines[1:] {
		pdf.CellFormat(0, 8, line, "", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func renderXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := Title
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	if r.Empty() {
		if err := f.SetCellStr(sheet, "A1", EmptyMessage); err != nil {
			return fmt.Errorf("write cell: %w", err)
		}
	} else {
		if err := f.SetSheetRow(sheet, "A1", &[]any{"#", "Ingredient", "Amount", "Unit"}); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for i, e := range r.Entries {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetSheetRow(sheet, cell, &[]any{e.Index, e.Name, e.Amount, e.Unit}); err != nil {
				return fmt.Errorf("write row %d: %w", e.Index, err)
			}
		}
		if err := f.SetColWidth(sheet, "B", "B", 30); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
