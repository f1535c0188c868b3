package metrics

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

func ExportToXLSX(records []ProcessingMetrics, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{
		"id", "document_id", "filename", "file_size", "format", "parser", "method",
		"started_at", "processing_ms", "success", "confidence", "data_quality",
		"fields_extracted", "fields_expected", "fuel", "electricity", "gas", "heat", "transport",
		"emissions_tco2", "f_gases", "industrial", "fallback_attempts", "ocr", "score", "errors",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, m := range records {
		r := i + 2
		values := []any{
			m.ID, m.DocumentID, m.Filename, m.FileSize, m.Format, m.ParserUsed, m.Method,
			m.StartedAt.Format("2006-01-02 15:04:05"), m.ProcessingTimeMs, m.Success, m.Confidence, m.DataQuality,
			m.FieldsExtracted, m.FieldsExpected,
			m.Categories.Fuel, m.Categories.Electricity, m.Categories.Gas, m.Categories.Heat, m.Categories.Transport,
			m.EmissionsTCO2, m.FGases, m.IndustrialProcesses, m.FallbackAttempts, m.OCRUsed,
			ScoreDocument(m).Score, strings.Join(m.Errors, "; "),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, r)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
