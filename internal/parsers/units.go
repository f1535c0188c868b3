package parsers

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"esgdocs/internal"
	"esgdocs/internal/util"
	"esgdocs/internal/vocab"
)

type unitPattern struct {
	category   internal.DataCategory
	canonical  string
	confidence float64
	withNumber *regexp.Regexp
	label      *regexp.Regexp
}

func newUnitPattern(category internal.DataCategory, canonical string, confidence float64, alts string) unitPattern {
	return unitPattern{
		category:   category,
		canonical:  canonical,
		confidence: confidence,
		withNumber: regexp.MustCompile(`(?i)(` + util.NumberExpr + `)\s*(` + alts + `)`),
		label:      regexp.MustCompile(`(?i)(?:^|[^\p{L}])(` + alts + `)(?:[^\p{L}]|$)`),
	}
}

var unitPatterns = []unitPattern{
	newUnitPattern(internal.CategoryElectricity, "МВт·ч", 0.9, `мвт\s*[·∙⋅*.\-/]?\s*ч(?:ас(?:ов|а)?)?|мегаватт[\-\s]?час(?:ов|а)?|mwh`),
	newUnitPattern(internal.CategoryElectricity, "кВт·ч", 0.9, `квт\s*[·∙⋅*.\-/]?\s*ч(?:ас(?:ов|а)?)?|киловатт[\-\s]?час(?:ов|а)?|kwh`),
	newUnitPattern(internal.CategoryFuel, "л", 0.8, `литр(?:ов|а|ы)?|л\.?`),
	newUnitPattern(internal.CategoryFuel, "т", 0.6, `тонн(?:а|ы)?|тн|т\.?`),
	newUnitPattern(internal.CategoryGas, "м³", 0.85, `нм3|м3|м³|куб\.?\s*м(?:етр(?:ов|а)?)?|кубометр(?:ов|а)?|m3`),
	newUnitPattern(internal.CategoryHeat, "Гкал", 0.9, `гкал|gcal`),
	newUnitPattern(internal.CategoryTransport, "км", 0.8, `километр(?:ов|а)?|км|km`),
}

var defaultUnits = map[internal.DataCategory]string{
	internal.CategoryElectricity: "кВт·ч",
	internal.CategoryFuel:        "л",
	internal.CategoryGas:         "м³",
	internal.CategoryHeat:        "Гкал",
	internal.CategoryTransport:   "км",
}

// UnitHit is one (number, unit) pair located in text.
type UnitHit struct {
	Category   internal.DataCategory
	Value      float64
	Unit       string
	Raw        string
	Confidence float64
	Offset     int
}

// ExtractUnits scans text with every unit pattern and returns the hits in
// text order. A number must not continue a longer number to its left and the
// unit must not run into a following letter.
func ExtractUnits(text string) []UnitHit {
	text = strings.ReplaceAll(text, "\u00A0", " ")
	hits := []UnitHit{}
	claimed := map[int]bool{}
	for _, p := range unitPatterns {
		pos := 0
		for pos < len(text) {
			loc := p.withNumber.FindStringSubmatchIndex(text[pos:])
			if loc == nil {
				break
			}
			start, end := pos+loc[0], pos+loc[1]
			numStart, numEnd := pos+loc[2], pos+loc[3]
			unitStart := pos + loc[4]
			if !numberBoundary(text, numStart) || !unitBoundary(text, end) || claimed[numStart] {
				_, size := utf8.DecodeRuneInString(text[start:])
				pos = start + size
				continue
			}
			value, ok := util.ParseNumber(text[numStart:numEnd])
			if ok {
				claimed[numStart] = true
				hits = append(hits, UnitHit{
					Category:   p.category,
					Value:      value,
					Unit:       p.canonical,
					Raw:        strings.TrimSpace(text[unitStart:end]),
					Confidence: p.confidence,
					Offset:     numStart,
				})
			}
			pos = end
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Offset < hits[j].Offset })
	return hits
}

// UnitFromLabel recognises a unit mentioned in a column header, key or tag,
// e.g. "Расход, кВт·ч" or "consumption_kwh".
func UnitFromLabel(label string) (internal.DataCategory, string, string, bool) {
	normalized := strings.ReplaceAll(label, "_", " ")
	for _, p := range unitPatterns {
		if m := p.label.FindStringSubmatch(normalized); m != nil {
			return p.category, p.canonical, strings.TrimSpace(m[1]), true
		}
	}
	return "", "", "", false
}

func unitConfidence(canonical string) float64 {
	for _, p := range unitPatterns {
		if p.canonical == canonical {
			return p.confidence
		}
	}
	return 0.5
}

func numberBoundary(text string, idx int) bool {
	if idx == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:idx])
	return !unicode.IsDigit(r) && r != '.' && r != ',' && !unicode.IsLetter(r)
}

func unitBoundary(text string, idx int) bool {
	if idx >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[idx:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// DataQualityFor grades unit density: high needs more than one unit per two
// rows and at least three units, medium more than one per five rows and at
// least one unit.
func DataQualityFor(unitsFound, totalRows int) internal.DataQuality {
	if totalRows <= 0 || unitsFound == 0 {
		return internal.QualityLow
	}
	ratio := float64(unitsFound) / float64(totalRows)
	switch {
	case ratio > 0.5 && unitsFound >= 3:
		return internal.QualityHigh
	case ratio > 0.2 && unitsFound >= 1:
		return internal.QualityMedium
	default:
		return internal.QualityLow
	}
}

// extraction accumulates rows and typed entries for one parse call.
type extraction struct {
	opts   internal.ParseOptions
	data   internal.ExtractedData
	units  []string
	text   strings.Builder
	source string
}

func newExtraction(opts internal.ParseOptions, source string) *extraction {
	return &extraction{opts: opts, source: source, data: internal.ExtractedData{RawRows: []string{}}}
}

func (e *extraction) full() bool {
	return e.opts.MaxRows > 0 && e.data.TotalRows >= e.opts.MaxRows
}

// addRow records one flattened row and scans it for unit pairs.
func (e *extraction) addRow(row string) {
	row = strings.TrimSpace(row)
	if row == "" || e.full() {
		return
	}
	e.data.TotalRows++
	e.data.RawRows = append(e.data.RawRows, row)
	e.text.WriteString(row)
	e.text.WriteByte('\n')
	if !e.opts.SearchRussianUnits {
		return
	}
	for _, hit := range ExtractUnits(row) {
		e.addEntry(hit.Category, hit.Value, hit.Unit, hit.Raw, hit.Confidence)
	}
}

// addLabeled records a bare numeric cell whose unit comes from a label.
func (e *extraction) addLabeled(label, value string) bool {
	v, ok := parseCell(value)
	if !ok {
		return false
	}
	return e.addLabeledValue(label, v)
}

func (e *extraction) addLabeledValue(label string, v float64) bool {
	if !e.opts.SearchRussianUnits {
		return false
	}
	category, canonical, raw, ok := UnitFromLabel(label)
	if !ok {
		return false
	}
	e.addEntry(category, v, canonical, raw, unitConfidence(canonical)*0.9)
	return true
}

// addSubstance records a value keyed only by a substance name such as
// "электроэнергия"; the category default unit is assumed.
func (e *extraction) addSubstance(name string, v float64) bool {
	if !e.opts.SearchRussianUnits {
		return false
	}
	category, ok := vocab.CategoryOf(strings.ReplaceAll(strings.ToLower(name), "_", " "))
	if !ok {
		return false
	}
	unit := defaultUnits[category]
	e.addEntry(category, v, unit, unit, 0.5)
	return true
}

func (e *extraction) addEntry(category internal.DataCategory, value float64, unit, raw string, confidence float64) {
	if confidence < e.opts.MinConfidence {
		return
	}
	e.units = append(e.units, raw)
	e.data.Add(internal.DataEntry{
		Category:   category,
		Value:      value,
		Unit:       unit,
		RawUnit:    raw,
		Confidence: clamp01(confidence),
		Source:     e.source,
	})
}

func (e *extraction) density() float64 {
	if e.data.TotalRows == 0 {
		return 0
	}
	d := float64(len(e.units)) / float64(e.data.TotalRows)
	if d > 1 {
		d = 1
	}
	return d
}

func (e *extraction) finish(format, encoding string, confidence float64, extra map[string]any) *internal.ParsedDocumentData {
	text := e.text.String()
	annotate(&e.data, text)
	docType := vocab.ClassifyDocument(text)
	if docType == "" {
		docType = format
	}
	return &internal.ParsedDocumentData{
		DocumentType:  docType,
		Confidence:    clamp01(confidence),
		ExtractedData: e.data,
		Metadata: internal.ParseMetadata{
			Encoding:          encoding,
			FormatDetected:    format,
			RussianUnitsFound: distinct(e.units),
			DataQuality:       DataQualityFor(len(e.units), e.data.TotalRows),
			Extra:             extra,
		},
		Text: text,
	}
}

// ExtractFromText runs the shared line-oriented extraction over plain text.
// It backs the text parser and OCR output.
func ExtractFromText(text, format, encoding string, baseConfidence float64, opts internal.ParseOptions, extra map[string]any) *internal.ParsedDocumentData {
	start := time.Now()
	ex := newExtraction(opts, format)
	for _, line := range util.SplitLines(text) {
		ex.addRow(line)
	}
	data := ex.finish(format, encoding, baseConfidence+0.3*ex.density(), extra)
	data.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()
	return data
}

func parseCell(s string) (float64, bool) {
	if !isNumericCell(s) {
		return 0, false
	}
	return util.ParseNumber(s)
}

var reNumericCell = regexp.MustCompile(`^[+-]?(?:` + util.NumberExpr + `)$`)

func isNumericCell(s string) bool {
	return reNumericCell.MatchString(strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " ")))
}

func distinct(in []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
