package metrics

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"esgdocs/internal"
)

// Store is an append-only record sink.
type Store interface {
	InsertMetrics(m ProcessingMetrics) error
	ListMetricsSince(since time.Time) ([]ProcessingMetrics, error)
}

type Collector struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewCollector(store Store, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{store: store, log: logger, now: time.Now}
}

func (c *Collector) Record(m ProcessingMetrics) error {
	if err := c.store.InsertMetrics(m); err != nil {
		c.log.Error("metrics.record.failed", "document_id", m.DocumentID, "err", err)
		return fmt.Errorf("record metrics: %w", err)
	}
	c.log.Debug("metrics.record.ok", "document_id", m.DocumentID, "success", m.Success,
		"parser", m.ParserUsed, "elapsed_ms", m.ProcessingTimeMs)
	return nil
}

func (c *Collector) Records(period time.Duration) ([]ProcessingMetrics, time.Time, time.Time, error) {
	if period <= 0 {
		period = DefaultPeriod
	}
	end := c.now().UTC()
	start := end.Add(-period)
	records, err := c.store.ListMetricsSince(start)
	if err != nil {
		return nil, start, end, fmt.Errorf("list metrics: %w", err)
	}
	return records, start, end, nil
}

func (c *Collector) Aggregate(period time.Duration) (AggregatedMetrics, error) {
	records, start, end, err := c.Records(period)
	if err != nil {
		return AggregatedMetrics{}, err
	}
	return CalculateAggregatedMetrics(records, start, end), nil
}

// QualityReport renders the trailing period as Markdown.
func (c *Collector) QualityReport(period time.Duration) (string, error) {
	records, start, end, err := c.Records(period)
	if err != nil {
		return "", err
	}
	return RenderReport(CalculateAggregatedMetrics(records, start, end), records), nil
}

func RenderReport(agg AggregatedMetrics, records []ProcessingMetrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Extraction quality report\n\n")
	fmt.Fprintf(&sb, "Period: %s to %s\n\n", agg.PeriodStart.Format("2006-01-02"), agg.PeriodEnd.Format("2006-01-02"))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Documents | %d |\n", agg.TotalDocuments)
	fmt.Fprintf(&sb, "| Successful | %d |\n", agg.Successful)
	fmt.Fprintf(&sb, "| Failed | %d |\n", agg.Failed)
	fmt.Fprintf(&sb, "| Success rate | %.1f%% |\n", agg.ExtractionSuccessRate*100)
	fmt.Fprintf(&sb, "| Mean processing time | %.0f ms |\n", agg.AvgProcessingTimeMs)
	fmt.Fprintf(&sb, "| Mean confidence | %.2f |\n", agg.AvgConfidence)
	fmt.Fprintf(&sb, "| Mean quality score | %.1f |\n", agg.AvgQualityScore)
	fmt.Fprintf(&sb, "| Mean emissions | %.3f tCO2 |\n", agg.AvgEmissionsTCO2)
	fmt.Fprintf(&sb, "| OCR documents | %d |\n", agg.OCRDocuments)
	fmt.Fprintf(&sb, "| F-gas documents | %d |\n", agg.FGasDocuments)
	fmt.Fprintf(&sb, "| Industrial process documents | %d |\n\n", agg.IndustrialDocuments)

	sb.WriteString("## Category extraction rate\n\n")
	sb.WriteString("| Category | Rate |\n|---|---|\n")
	for _, cat := range internal.AllCategories {
		fmt.Fprintf(&sb, "| %s | %.1f%% |\n", cat, agg.CategoryRates[cat]*100)
	}
	sb.WriteString("\n")

	writeHistogram(&sb, "Parsers", agg.ParserUsage)
	writeHistogram(&sb, "Methods", agg.MethodUsage)
	writeHistogram(&sb, "Data quality", agg.QualityDistribution)

	var weak []string
	for _, m := range records {
		score := ScoreDocument(m)
		if score.Score >= 40 {
			continue
		}
		line := fmt.Sprintf("- %s (%d)", m.Filename, score.Score)
		if len(score.Weaknesses) > 0 {
			line += ": " + strings.Join(score.Weaknesses, "; ")
		}
		weak = append(weak, line)
	}
	if len(weak) > 0 {
		sb.WriteString("## Documents needing review\n\n")
		sb.WriteString(strings.Join(weak, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeHistogram(sb *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(a, b)
	})
	fmt.Fprintf(sb, "## %s\n\n| Name | Documents |\n|---|---|\n", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "| %s | %d |\n", k, counts[k])
	}
	sb.WriteString("\n")
}
