package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"esgdocs/internal"
)

func ExportEntriesToXLSX(rows []internal.EntryExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{
		"document_id", "filename", "category", "value", "unit", "raw_unit",
		"confidence", "recommendation", "source", "period", "supplier",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.DocumentID)
		set(2, row.Filename)
		set(3, row.Category)
		set(4, row.Value)
		set(5, row.Unit)
		set(6, row.RawUnit)
		set(7, row.Confidence)
		set(8, row.Recommendation)
		set(9, row.Source)
		set(10, row.Period)
		set(11, row.Supplier)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// EntryRows flattens in-memory results for export without a database.
func EntryRows(results []DocumentResult) []internal.EntryExportRow {
	var out []internal.EntryExportRow
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	for _, r := range results {
		for _, e := range r.Entries() {
			out = append(out, internal.EntryExportRow{
				DocumentID:     r.DocumentID,
				Filename:       r.Filename,
				Category:       string(e.Category),
				Value:          e.Value,
				Unit:           e.Unit,
				RawUnit:        e.RawUnit,
				Confidence:     e.Confidence,
				Recommendation: e.Recommendation,
				Source:         e.Source,
				Period:         deref(e.Period),
				Supplier:       deref(e.Supplier),
			})
		}
	}
	return out
}
