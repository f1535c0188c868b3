package detect

import (
	"time"

	"esgdocs/internal"
)

// Parser names as registered with the pipeline registry.
const (
	ParserCSV    = "csv"
	ParserExcel  = "excel"
	ParserJSON   = "json"
	ParserXML    = "xml"
	ParserHTML   = "html"
	ParserRTF    = "rtf"
	ParserPDF    = "pdf"
	ParserOffice = "office"
	ParserText   = "text"
	ParserOCR    = "ocr"
)

var strategyTimeouts = map[internal.StrategyPriority]time.Duration{
	internal.PriorityStructural: 30 * time.Second,
	internal.PriorityTextual:    20 * time.Second,
	internal.PriorityHybrid:     60 * time.Second,
	internal.PriorityOCR:        120 * time.Second,
}

var strategyMinConfidence = map[internal.StrategyPriority]float64{
	internal.PriorityStructural: 0.6,
	internal.PriorityTextual:    0.4,
	internal.PriorityHybrid:     0.3,
	internal.PriorityOCR:        0.3,
}

// Strategy derives the parser plan for a classified document.
func Strategy(info internal.FormatInfo) internal.ProcessingStrategy {
	s := internal.ProcessingStrategy{}
	switch info.Format {
	case internal.FormatCSV, internal.FormatTSV:
		s.Priority, s.RecommendedParser, s.FallbackParsers = internal.PriorityStructural, ParserCSV, []string{ParserText}
	case internal.FormatExcel:
		s.Priority, s.RecommendedParser = internal.PriorityStructural, ParserExcel
	case internal.FormatJSON:
		s.Priority, s.RecommendedParser, s.FallbackParsers = internal.PriorityStructural, ParserJSON, []string{ParserText}
	case internal.FormatXML:
		s.Priority, s.RecommendedParser, s.FallbackParsers = internal.PriorityStructural, ParserXML, []string{ParserText}
	case internal.FormatHTML:
		s.Priority, s.RecommendedParser, s.FallbackParsers = internal.PriorityTextual, ParserHTML, []string{ParserText}
	case internal.FormatRTF:
		s.Priority, s.RecommendedParser, s.FallbackParsers = internal.PriorityTextual, ParserRTF, []string{ParserText}
	case internal.FormatDOCX, internal.FormatODT:
		s.Priority, s.RecommendedParser = internal.PriorityTextual, ParserOffice
	case internal.FormatTXT:
		s.Priority, s.RecommendedParser = internal.PriorityTextual, ParserText
	case internal.FormatPDF:
		if info.Characteristics.RequiresOCR {
			s.Priority, s.RecommendedParser, s.FallbackParsers = internal.PriorityOCR, ParserOCR, []string{ParserPDF}
		} else {
			s.Priority, s.RecommendedParser, s.FallbackParsers = internal.PriorityHybrid, ParserPDF, []string{ParserOCR}
		}
	case internal.FormatImage:
		s.Priority, s.RecommendedParser = internal.PriorityOCR, ParserOCR
	default:
		s.Priority = internal.PriorityTextual
	}
	if s.FallbackParsers == nil {
		s.FallbackParsers = []string{}
	}
	s.Timeout = strategyTimeouts[s.Priority]
	s.MinConfidence = strategyMinConfidence[s.Priority]
	return s
}
