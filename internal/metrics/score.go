package metrics

import (
	"fmt"
	"math"

	"esgdocs/internal"
)

type ScoreBreakdown struct {
	Confidence   float64 `json:"confidence"`
	Completeness float64 `json:"completeness"`
	Quality      float64 `json:"quality"`
	Breadth      float64 `json:"breadth"`
	Speed        float64 `json:"speed"`
	Deductions   float64 `json:"deductions"`
}

type DocumentScore struct {
	Score           int            `json:"score"`
	Breakdown       ScoreBreakdown `json:"breakdown"`
	Strengths       []string       `json:"strengths"`
	Weaknesses      []string       `json:"weaknesses"`
	Recommendations []string       `json:"recommendations"`
}

const (
	errorDeduction    = 5
	fallbackDeduction = 3
)

// ScoreDocument grades one record on a 0..100 scale.
func ScoreDocument(m ProcessingMetrics) DocumentScore {
	var b ScoreBreakdown
	var s DocumentScore

	b.Confidence = 30 * min(max(m.Confidence, 0), 1)
	b.Completeness = 25 * m.Completeness()
	switch internal.DataQuality(m.DataQuality) {
	case internal.QualityHigh:
		b.Quality = 20
	case internal.QualityMedium:
		b.Quality = 10
	}
	b.Breadth = float64(min(15, 5*m.Categories.Count()))
	if m.Success {
		switch {
		case m.ProcessingTimeMs < 1000:
			b.Speed = 10
		case m.ProcessingTimeMs < 5000:
			b.Speed = 7
		case m.ProcessingTimeMs < 15000:
			b.Speed = 4
		}
	}
	b.Deductions = float64(errorDeduction*len(m.Errors) + fallbackDeduction*m.FallbackAttempts)

	total := b.Confidence + b.Completeness + b.Quality + b.Breadth + b.Speed - b.Deductions
	s.Score = int(math.Round(min(max(total, 0), 100)))
	s.Breakdown = b

	if m.Confidence >= 0.8 {
		s.Strengths = append(s.Strengths, fmt.Sprintf("high parser confidence (%.0f%%)", m.Confidence*100))
	} else if m.Confidence < 0.5 {
		s.Weaknesses = append(s.Weaknesses, fmt.Sprintf("low parser confidence (%.0f%%)", m.Confidence*100))
		s.Recommendations = append(s.Recommendations, "route the document to manual review")
	}
	if ratio := m.Completeness(); ratio >= 0.8 {
		s.Strengths = append(s.Strengths, fmt.Sprintf("%d of %d numeric rows extracted", m.FieldsExtracted, m.FieldsExpected))
	} else if m.FieldsExpected > 0 {
		s.Weaknesses = append(s.Weaknesses, fmt.Sprintf("only %d of %d numeric rows extracted", m.FieldsExtracted, m.FieldsExpected))
		s.Recommendations = append(s.Recommendations, "check that quantities carry recognisable units")
	}
	if n := m.Categories.Count(); n >= 2 {
		s.Strengths = append(s.Strengths, fmt.Sprintf("%d data categories found", n))
	} else if n == 0 {
		s.Weaknesses = append(s.Weaknesses, "no data categories found")
	}
	if b.Speed == 10 {
		s.Strengths = append(s.Strengths, "fast processing")
	} else if m.Success && b.Speed == 0 {
		s.Weaknesses = append(s.Weaknesses, fmt.Sprintf("slow processing (%d ms)", m.ProcessingTimeMs))
	}
	if len(m.Errors) > 0 {
		s.Weaknesses = append(s.Weaknesses, fmt.Sprintf("%d processing error(s)", len(m.Errors)))
	}
	if m.FallbackAttempts > 0 {
		s.Weaknesses = append(s.Weaknesses, fmt.Sprintf("%d fallback parser attempt(s)", m.FallbackAttempts))
		s.Recommendations = append(s.Recommendations, "ask the sender for a native export instead of a scan or conversion")
	}
	if !m.Success {
		s.Recommendations = append(s.Recommendations, "file could not be read; request another format")
	}
	return s
}
