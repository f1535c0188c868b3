package metrics

import (
	"time"

	"esgdocs/internal"
)

const DefaultPeriod = 7 * 24 * time.Hour

type AggregatedMetrics struct {
	PeriodStart           time.Time                         `json:"periodStart"`
	PeriodEnd             time.Time                         `json:"periodEnd"`
	TotalDocuments        int                               `json:"totalDocuments"`
	Successful            int                               `json:"successful"`
	Failed                int                               `json:"failed"`
	ExtractionSuccessRate float64                           `json:"extractionSuccessRate"`
	AvgProcessingTimeMs   float64                           `json:"avgProcessingTimeMs"`
	AvgConfidence         float64                           `json:"avgConfidence"`
	AvgQualityScore       float64                           `json:"avgQualityScore"`
	MethodUsage           map[string]int                    `json:"methodUsage"`
	ParserUsage           map[string]int                    `json:"parserUsage"`
	QualityDistribution   map[string]int                    `json:"qualityDistribution"`
	CategoryRates         map[internal.DataCategory]float64 `json:"categoryRates"`
	AvgEmissionsTCO2      float64                           `json:"avgEmissionsTCO2"`
	FGasDocuments         int                               `json:"fGasDocuments"`
	IndustrialDocuments   int                               `json:"industrialDocuments"`
	OCRDocuments          int                               `json:"ocrDocuments"`
	FallbackAttempts      int                               `json:"fallbackAttempts"`
}

// CalculateAggregatedMetrics folds records into one period summary. Rates are
// fractions of the number of records; an empty input yields zero rates.
func CalculateAggregatedMetrics(records []ProcessingMetrics, start, end time.Time) AggregatedMetrics {
	agg := AggregatedMetrics{
		PeriodStart:         start,
		PeriodEnd:           end,
		TotalDocuments:      len(records),
		MethodUsage:         map[string]int{},
		ParserUsage:         map[string]int{},
		QualityDistribution: map[string]int{},
		CategoryRates:       map[internal.DataCategory]float64{},
	}
	for _, c := range internal.AllCategories {
		agg.CategoryRates[c] = 0
	}
	if len(records) == 0 {
		return agg
	}

	var timeSum, confSum, scoreSum, emSum float64
	categoryHits := map[internal.DataCategory]int{}
	for _, m := range records {
		if m.Success {
			agg.Successful++
		} else {
			agg.Failed++
		}
		timeSum += float64(m.ProcessingTimeMs)
		confSum += m.Confidence
		scoreSum += float64(ScoreDocument(m).Score)
		emSum += m.EmissionsTCO2
		if m.Method != "" {
			agg.MethodUsage[m.Method]++
		}
		if m.ParserUsed != "" {
			agg.ParserUsage[m.ParserUsed]++
		}
		if m.DataQuality != "" {
			agg.QualityDistribution[m.DataQuality]++
		}
		if m.Categories.Fuel {
			categoryHits[internal.CategoryFuel]++
		}
		if m.Categories.Electricity {
			categoryHits[internal.CategoryElectricity]++
		}
		if m.Categories.Gas {
			categoryHits[internal.CategoryGas]++
		}
		if m.Categories.Heat {
			categoryHits[internal.CategoryHeat]++
		}
		if m.Categories.Transport {
			categoryHits[internal.CategoryTransport]++
		}
		if m.FGases {
			agg.FGasDocuments++
		}
		if m.IndustrialProcesses {
			agg.IndustrialDocuments++
		}
		if m.OCRUsed {
			agg.OCRDocuments++
		}
		agg.FallbackAttempts += m.FallbackAttempts
	}

	n := float64(len(records))
	agg.ExtractionSuccessRate = float64(agg.Successful) / n
	agg.AvgProcessingTimeMs = timeSum / n
	agg.AvgConfidence = confSum / n
	agg.AvgQualityScore = scoreSum / n
	agg.AvgEmissionsTCO2 = emSum / n
	for c, hits := range categoryHits {
		agg.CategoryRates[c] = float64(hits) / n
	}
	return agg
}
