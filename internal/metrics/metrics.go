// Package metrics records one ProcessingMetrics per document and turns the
// stored records into period aggregates, per-document grades and reports.
package metrics

import (
	"time"

	"github.com/google/uuid"

	"esgdocs/internal"
	"esgdocs/internal/util"
	"esgdocs/internal/vocab"
)

type CategoryFlags struct {
	Fuel        bool `json:"fuel"`
	Electricity bool `json:"electricity"`
	Gas         bool `json:"gas"`
	Heat        bool `json:"heat"`
	Transport   bool `json:"transport"`
}

func (c CategoryFlags) Count() int {
	n := 0
	for _, b := range []bool{c.Fuel, c.Electricity, c.Gas, c.Heat, c.Transport} {
		if b {
			n++
		}
	}
	return n
}

// ProcessingMetrics is immutable once recorded.
type ProcessingMetrics struct {
	ID                  string        `json:"id"`
	DocumentID          string        `json:"documentId"`
	Filename            string        `json:"filename"`
	FileSize            int64         `json:"fileSize"`
	Format              string        `json:"format"`
	ParserUsed          string        `json:"parserUsed"`
	Method              string        `json:"method"`
	StartedAt           time.Time     `json:"startedAt"`
	ProcessingTimeMs    int64         `json:"processingTimeMs"`
	Success             bool          `json:"success"`
	Confidence          float64       `json:"confidence"`
	DataQuality         string        `json:"dataQuality"`
	FieldsExtracted     int           `json:"fieldsExtracted"`
	FieldsExpected      int           `json:"fieldsExpected"`
	Categories          CategoryFlags `json:"categories"`
	EmissionsTCO2       float64       `json:"emissionsTCO2"`
	FGases              bool          `json:"fGases"`
	IndustrialProcesses bool          `json:"industrialProcesses"`
	FallbackAttempts    int           `json:"fallbackAttempts"`
	OCRUsed             bool          `json:"ocrUsed"`
	Errors              []string      `json:"errors,omitempty"`
	Warnings            []string      `json:"warnings,omitempty"`
}

func (m ProcessingMetrics) Completeness() float64 {
	if m.FieldsExpected <= 0 {
		if m.FieldsExtracted > 0 {
			return 1
		}
		return 0
	}
	return min(1, float64(m.FieldsExtracted)/float64(m.FieldsExpected))
}

// Run describes one finished document for NewRecord.
type Run struct {
	DocumentID       string
	Filename         string
	FileSize         int64
	Info             internal.FormatInfo
	ParserUsed       string
	StartedAt        time.Time
	Result           internal.ParserResult
	FallbackAttempts int
	Warnings         []string
}

func NewRecord(run Run) ProcessingMetrics {
	m := ProcessingMetrics{
		ID:               uuid.New().String(),
		DocumentID:       run.DocumentID,
		Filename:         run.Filename,
		FileSize:         run.FileSize,
		Format:           string(run.Info.Format),
		ParserUsed:       run.ParserUsed,
		Method:           run.ParserUsed,
		StartedAt:        run.StartedAt.UTC(),
		ProcessingTimeMs: run.Result.ProcessingTime.Milliseconds(),
		Success:          run.Result.Success,
		DataQuality:      string(internal.QualityLow),
		FallbackAttempts: run.FallbackAttempts,
		Warnings:         run.Warnings,
	}
	if run.Result.Error != "" {
		m.Errors = append(m.Errors, run.Result.Error)
	}
	data := run.Result.Data
	if data == nil {
		return m
	}
	if method, ok := data.Metadata.Extra["method"].(string); ok && method != "" {
		m.Method = method
	}
	if _, ok := data.Metadata.Extra["ocr_provider"]; ok {
		m.OCRUsed = true
	}
	m.Confidence = data.Confidence
	m.DataQuality = string(data.Metadata.DataQuality)
	m.FieldsExtracted = data.ExtractedData.EntryCount()
	m.FieldsExpected = expectedFields(data.ExtractedData)
	ex := &data.ExtractedData
	m.Categories = CategoryFlags{
		Fuel:        len(ex.FuelData) > 0,
		Electricity: len(ex.ElectricityData) > 0,
		Gas:         len(ex.GasData) > 0,
		Heat:        len(ex.HeatData) > 0,
		Transport:   len(ex.TransportData) > 0,
	}
	m.EmissionsTCO2 = EstimateEmissions(ex.Entries())
	m.FGases = vocab.HasFGases(data.Text)
	m.IndustrialProcesses = vocab.HasIndustrialProcesses(data.Text)
	return m
}

// expectedFields counts rows that carry at least one number; those are the
// rows a complete extraction would have turned into entries.
func expectedFields(ex internal.ExtractedData) int {
	n := 0
	for _, row := range ex.RawRows {
		if util.CountNumbers(row) > 0 {
			n++
		}
	}
	return max(n, ex.EntryCount())
}
