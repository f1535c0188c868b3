package parsers

import (
	"math"
	"time"

	"esgdocs/internal"
)

type QualityRating string

const (
	RatingExcellent QualityRating = "excellent"
	RatingGood      QualityRating = "good"
	RatingFair      QualityRating = "fair"
	RatingPoor      QualityRating = "poor"
)

type QualityAssessment struct {
	Score           int           `json:"score"`
	Rating          QualityRating `json:"rating"`
	Recommendations []string      `json:"recommendations"`
}

// suspiciouslyFast marks parses that likely returned without reading content.
const suspiciouslyFast = 10 * time.Millisecond

// AssessExtractionQuality scores a parser result on a 0..100 scale.
func AssessExtractionQuality(res internal.ParserResult) QualityAssessment {
	if !res.Success || res.Data == nil {
		msg := "parser failed"
		if res.Error != "" {
			msg += ": " + res.Error
		}
		return QualityAssessment{Score: 0, Rating: RatingPoor, Recommendations: []string{msg, "try another parser or OCR"}}
	}

	data := res.Data
	units := len(data.Metadata.RussianUnitsFound)
	score := data.Confidence * 50
	score += math.Min(25, float64(units)*5)
	switch data.Metadata.DataQuality {
	case internal.QualityHigh:
		score += 20
	case internal.QualityMedium:
		score += 10
	}
	recs := []string{}
	if res.ProcessingTime < suspiciouslyFast {
		score -= 10
		recs = append(recs, "processing finished suspiciously fast; check that the document is not empty")
	}
	score = math.Max(0, math.Min(100, score))

	if data.Confidence < 0.5 {
		recs = append(recs, "low parser confidence; verify extracted values manually")
	}
	if units == 0 {
		recs = append(recs, "no units of measure found; the document may not contain consumption data")
	}
	if data.Metadata.DataQuality == internal.QualityLow && units > 0 {
		recs = append(recs, "few rows carry units; consider a structured export of the source data")
	}

	out := QualityAssessment{Score: int(math.Round(score)), Recommendations: recs}
	switch {
	case out.Score >= 80:
		out.Rating = RatingExcellent
	case out.Score >= 60:
		out.Rating = RatingGood
	case out.Score >= 40:
		out.Rating = RatingFair
	default:
		out.Rating = RatingPoor
	}
	return out
}
