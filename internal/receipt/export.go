package receipt

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

const (
	receiptsSheet = "Receipts"
	summarySheet  = "Summary"
)

var exportHeaders = []string{
	"ID", "Date", "Merchant", "Amount", "Category", "Description",
	"Confidence", "Source", "Receipts In Image", "Edited", "Filename", "Created At",
}

// ExportXLSX writes every receipt to an Excel workbook: one row per receipt
// plus a per-category summary sheet.
func (s *Service) ExportXLSX(w io.Writer) error {
	receipts, err := s.ListReceipts()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Failed to close workbook", "error", err)
		}
	}()

	index, err := f.NewSheet(receiptsSheet)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}

	if err := writeRow(f, receiptsSheet, 1, toAny(exportHeaders)); err != nil {
		return err
	}
	totals := make(map[string]int)
	counts := make(map[string]int)
	for i, r := range receipts {
		row := []any{
			r.ID, deref(r.Date), deref(r.MerchantName), derefInt(r.Amount), deref(r.Category),
			deref(r.Description), r.Confidence, string(r.Source), r.TotalCount, r.Edited,
			r.Filename, r.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writeRow(f, receiptsSheet, i+2, row); err != nil {
			return err
		}

		category := extraction.CategoryMiscellaneous
		if r.Category != nil {
			category = *r.Category
		}
		counts[category]++
		if r.Amount != nil {
			totals[category] += *r.Amount
		}
	}
	if err := f.SetColWidth(receiptsSheet, "A", "A", 38); err != nil {
		return fmt.Errorf("setting column width: %w", err)
	}
	if err := f.SetColWidth(receiptsSheet, "B", "F", 18); err != nil {
		return fmt.Errorf("setting column width: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	if err := writeRow(f, summarySheet, 1, []any{"Category", "Receipts", "Total"}); err != nil {
		return err
	}
	for i, category := range extraction.Categories {
		if err := writeRow(f, summarySheet, i+2, []any{category, counts[category], totals[category]}); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("computing cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("setting cell %s: %w", cell, err)
		}
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int) any {
	if n == nil {
		return ""
	}
	return *n
}
