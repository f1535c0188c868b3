package metrics

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"esgdocs/internal"
)

type memStore struct {
	records []ProcessingMetrics
	err     error
}

func (s *memStore) InsertMetrics(m ProcessingMetrics) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, m)
	return nil
}

func (s *memStore) ListMetricsSince(since time.Time) ([]ProcessingMetrics, error) {
	var out []ProcessingMetrics
	for _, m := range s.records {
		if !m.StartedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, s.err
}

func sampleResult() internal.ParserResult {
	var ex internal.ExtractedData
	ex.Add(internal.DataEntry{Category: internal.CategoryElectricity, Value: 1000, Unit: "кВт·ч", RawUnit: "кВт·ч", Confidence: 0.9})
	ex.Add(internal.DataEntry{Category: internal.CategoryGas, Value: 100, Unit: "м³", RawUnit: "м3", Confidence: 0.85})
	ex.RawRows = []string{"Электроэнергия 1000 кВт·ч", "Газ 100 м3", "Итого 5 позиций", "Хладагент фреон заправлен"}
	ex.TotalRows = 4
	return internal.ParserResult{
		Success:        true,
		ProcessingTime: 250 * time.Millisecond,
		Data: &internal.ParsedDocumentData{
			DocumentType:  "act",
			Confidence:    0.9,
			ExtractedData: ex,
			Metadata: internal.ParseMetadata{
				DataQuality: internal.QualityHigh,
				Extra:       map[string]any{"method": "excelize"},
			},
			Text: "Электроэнергия 1000 кВт·ч\nГаз 100 м3\nИтого 5 позиций\nХладагент фреон заправлен\n",
		},
	}
}

func TestNewRecord(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m := NewRecord(Run{
		DocumentID:       "doc-1",
		Filename:         "act.xlsx",
		FileSize:         2048,
		Info:             internal.FormatInfo{Format: internal.FormatExcel},
		ParserUsed:       "excel",
		StartedAt:        start,
		Result:           sampleResult(),
		FallbackAttempts: 1,
	})

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "excel", m.Format)
	assert.Equal(t, "excel", m.ParserUsed)
	assert.Equal(t, "excelize", m.Method)
	assert.Equal(t, int64(250), m.ProcessingTimeMs)
	assert.True(t, m.Success)
	assert.Equal(t, 2, m.FieldsExtracted)
	assert.Equal(t, 3, m.FieldsExpected)
	assert.Equal(t, CategoryFlags{Electricity: true, Gas: true}, m.Categories)
	assert.InDelta(t, 0.515, m.EmissionsTCO2, 1e-9)
	assert.True(t, m.FGases)
	assert.False(t, m.IndustrialProcesses)
	assert.False(t, m.OCRUsed)
	assert.Empty(t, m.Errors)
}

func TestNewRecordFailure(t *testing.T) {
	m := NewRecord(Run{
		DocumentID: "doc-2",
		Filename:   "scan.pdf",
		Info:       internal.FormatInfo{Format: internal.FormatPDF},
		ParserUsed: "pdf",
		Result:     internal.ParserResult{Success: false, Error: "pdf has no text layer"},
	})
	assert.False(t, m.Success)
	assert.Equal(t, []string{"pdf has no text layer"}, m.Errors)
	assert.Equal(t, "low", m.DataQuality)
	assert.Zero(t, m.FieldsExtracted)
}

func TestScoreDocument(t *testing.T) {
	m := ProcessingMetrics{
		Success:          true,
		Confidence:       0.9,
		DataQuality:      "high",
		FieldsExtracted:  4,
		FieldsExpected:   5,
		Categories:       CategoryFlags{Fuel: true, Electricity: true},
		ProcessingTimeMs: 300,
		FallbackAttempts: 1,
	}
	s := ScoreDocument(m)
	assert.Equal(t, 84, s.Score)
	assert.InDelta(t, 27, s.Breakdown.Confidence, 1e-9)
	assert.InDelta(t, 20, s.Breakdown.Completeness, 1e-9)
	assert.InDelta(t, 3, s.Breakdown.Deductions, 1e-9)
	assert.Contains(t, s.Strengths, "fast processing")
	assert.Contains(t, s.Weaknesses, "1 fallback parser attempt(s)")

	failed := ScoreDocument(ProcessingMetrics{Errors: []string{"boom"}, DataQuality: "low"})
	assert.Equal(t, 0, failed.Score)
	assert.Contains(t, failed.Recommendations, "file could not be read; request another format")

	slow := ScoreDocument(ProcessingMetrics{Success: true, Confidence: 0.3, ProcessingTimeMs: 20000, DataQuality: "medium"})
	assert.Equal(t, 19, slow.Score)
	assert.Contains(t, slow.Weaknesses, "slow processing (20000 ms)")
	assert.Contains(t, slow.Recommendations, "route the document to manual review")
}

func TestCalculateAggregatedMetrics(t *testing.T) {
	var records []ProcessingMetrics
	for i := 0; i < 10; i++ {
		records = append(records, ProcessingMetrics{
			Success:          i < 7,
			ProcessingTimeMs: int64(100 * (i + 1)),
			Confidence:       0.5,
			ParserUsed:       []string{"csv", "pdf"}[i%2],
			Method:           "m",
			DataQuality:      "medium",
			Categories:       CategoryFlags{Electricity: i%2 == 0, Heat: i == 3},
			EmissionsTCO2:    1,
			FGases:           i == 0,
		})
	}
	agg := CalculateAggregatedMetrics(records, time.Time{}, time.Time{})
	assert.Equal(t, 10, agg.TotalDocuments)
	assert.Equal(t, 7, agg.Successful)
	assert.Equal(t, 3, agg.Failed)
	assert.Equal(t, 7.0/10.0, agg.ExtractionSuccessRate)
	assert.InDelta(t, 550, agg.AvgProcessingTimeMs, 1e-9)
	assert.InDelta(t, 0.5, agg.AvgConfidence, 1e-9)
	assert.Equal(t, map[string]int{"csv": 5, "pdf": 5}, agg.ParserUsage)
	assert.Equal(t, 10, agg.QualityDistribution["medium"])
	assert.InDelta(t, 0.5, agg.CategoryRates[internal.CategoryElectricity], 1e-9)
	assert.InDelta(t, 0.1, agg.CategoryRates[internal.CategoryHeat], 1e-9)
	assert.Zero(t, agg.CategoryRates[internal.CategoryTransport])
	assert.InDelta(t, 1, agg.AvgEmissionsTCO2, 1e-9)
	assert.Equal(t, 1, agg.FGasDocuments)

	empty := CalculateAggregatedMetrics(nil, time.Time{}, time.Time{})
	assert.Zero(t, empty.ExtractionSuccessRate)
	assert.Len(t, empty.CategoryRates, len(internal.AllCategories))
}

func TestCollectorRecordAndReport(t *testing.T) {
	store := &memStore{}
	c := NewCollector(store, nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	old := ProcessingMetrics{DocumentID: "old", Filename: "old.csv", StartedAt: now.Add(-30 * 24 * time.Hour), Success: true}
	good := NewRecord(Run{DocumentID: "a", Filename: "act.xlsx", ParserUsed: "excel", StartedAt: now.Add(-time.Hour), Result: sampleResult()})
	bad := ProcessingMetrics{DocumentID: "b", Filename: "broken.pdf", ParserUsed: "pdf", StartedAt: now.Add(-2 * time.Hour), Errors: []string{"no text"}}
	for _, m := range []ProcessingMetrics{old, good, bad} {
		require.NoError(t, c.Record(m))
	}

	agg, err := c.Aggregate(0)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.TotalDocuments)
	assert.Equal(t, 0.5, agg.ExtractionSuccessRate)

	report, err := c.QualityReport(DefaultPeriod)
	require.NoError(t, err)
	assert.Contains(t, report, "# Extraction quality report")
	assert.Contains(t, report, "| Documents | 2 |")
	assert.Contains(t, report, "| Success rate | 50.0% |")
	assert.Contains(t, report, "| electricity | 50.0% |")
	assert.Contains(t, report, "## Documents needing review")
	assert.Contains(t, report, "- broken.pdf (0)")
	assert.NotContains(t, report, "old.csv")
}

func TestCollectorStoreError(t *testing.T) {
	c := NewCollector(&memStore{err: errors.New("disk full")}, nil)
	err := c.Record(ProcessingMetrics{DocumentID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestExportToXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "metrics.xlsx")
	records := []ProcessingMetrics{
		NewRecord(Run{DocumentID: "a", Filename: "act.xlsx", ParserUsed: "excel", Result: sampleResult()}),
		{DocumentID: "b", Filename: "x.pdf", Errors: []string{"e1", "e2"}},
	}
	require.NoError(t, ExportToXLSX(records, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "document_id", rows[0][1])
	assert.Equal(t, "act.xlsx", rows[1][2])
	assert.Equal(t, "e1; e2", rows[2][len(rows[2])-1])
	assert.Equal(t, fmt.Sprint(ScoreDocument(records[0]).Score), rows[1][24])
}
