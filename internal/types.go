package internal

import "time"

type DocumentFormat string

const (
	FormatCSV     DocumentFormat = "csv"
	FormatTSV     DocumentFormat = "tsv"
	FormatExcel   DocumentFormat = "excel"
	FormatJSON    DocumentFormat = "json"
	FormatTXT     DocumentFormat = "txt"
	FormatPDF     DocumentFormat = "pdf"
	FormatHTML    DocumentFormat = "html"
	FormatDOCX    DocumentFormat = "docx"
	FormatODT     DocumentFormat = "odt"
	FormatRTF     DocumentFormat = "rtf"
	FormatXML     DocumentFormat = "xml"
	FormatImage   DocumentFormat = "image"
	FormatUnknown DocumentFormat = "unknown"
)

type StrategyPriority string

const (
	PriorityStructural StrategyPriority = "structural"
	PriorityTextual    StrategyPriority = "textual"
	PriorityOCR        StrategyPriority = "ocr"
	PriorityHybrid     StrategyPriority = "hybrid"
)

type FormatCharacteristics struct {
	HasStructure      bool `json:"hasStructure"`
	IsTextBased       bool `json:"isTextBased"`
	RequiresOCR       bool `json:"requiresOcr"`
	SupportedByParser bool `json:"supportedByParser"`
}

type ProcessingStrategy struct {
	Priority          StrategyPriority `json:"priority"`
	RecommendedParser string           `json:"recommendedParser"`
	FallbackParsers   []string         `json:"fallbackParsers"`
	MinConfidence     float64          `json:"minConfidence"`
	Timeout           time.Duration    `json:"timeout"`
}

// FormatInfo is computed once per file and never mutated afterwards.
type FormatInfo struct {
	Format          DocumentFormat        `json:"format"`
	Confidence      float64               `json:"confidence"`
	Encoding        string                `json:"encoding"`
	MIMEType        string                `json:"mimeType,omitempty"`
	Delimiter       string                `json:"delimiter,omitempty"`
	Characteristics FormatCharacteristics `json:"characteristics"`
	Strategy        ProcessingStrategy    `json:"strategy"`
}

type DataCategory string

const (
	CategoryFuel        DataCategory = "fuel"
	CategoryElectricity DataCategory = "electricity"
	CategoryGas         DataCategory = "gas"
	CategoryHeat        DataCategory = "heat"
	CategoryTransport   DataCategory = "transport"
)

var AllCategories = []DataCategory{CategoryFuel, CategoryElectricity, CategoryGas, CategoryHeat, CategoryTransport}

type DataQuality string

const (
	QualityHigh   DataQuality = "high"
	QualityMedium DataQuality = "medium"
	QualityLow    DataQuality = "low"
)

// DataEntry is one typed quantity found in a document.
type DataEntry struct {
	Category       DataCategory `json:"category"`
	Value          float64      `json:"value"`
	Unit           string       `json:"unit"`
	RawUnit        string       `json:"rawUnit"`
	Period         *string      `json:"period,omitempty"`
	Supplier       *string      `json:"supplier,omitempty"`
	Confidence     float64      `json:"confidence"`
	Source         string       `json:"source,omitempty"`
	Recommendation string       `json:"recommendation,omitempty"`
}

type ExtractedData struct {
	FuelData        []DataEntry `json:"fuel_data"`
	ElectricityData []DataEntry `json:"electricity_data"`
	GasData         []DataEntry `json:"gas_data"`
	HeatData        []DataEntry `json:"heat_data"`
	TransportData   []DataEntry `json:"transport_data"`
	RawRows         []string    `json:"raw_rows"`
	TotalRows       int         `json:"total_rows"`
	Headers         []string    `json:"headers,omitempty"`
}

func (d *ExtractedData) Add(e DataEntry) {
	switch e.Category {
	case CategoryFuel:
		d.FuelData = append(d.FuelData, e)
	case CategoryElectricity:
		d.ElectricityData = append(d.ElectricityData, e)
	case CategoryGas:
		d.GasData = append(d.GasData, e)
	case CategoryHeat:
		d.HeatData = append(d.HeatData, e)
	case CategoryTransport:
		d.TransportData = append(d.TransportData, e)
	}
}

func (d *ExtractedData) Entries() []DataEntry {
	out := make([]DataEntry, 0, d.EntryCount())
	out = append(out, d.FuelData...)
	out = append(out, d.ElectricityData...)
	out = append(out, d.GasData...)
	out = append(out, d.HeatData...)
	out = append(out, d.TransportData...)
	return out
}

func (d *ExtractedData) EntryCount() int {
	return len(d.FuelData) + len(d.ElectricityData) + len(d.GasData) + len(d.HeatData) + len(d.TransportData)
}

// Annotate sets period and supplier on every entry that has none. Nil
// arguments leave the field untouched.
func (d *ExtractedData) Annotate(period, supplier *string) {
	for _, list := range []*[]DataEntry{&d.FuelData, &d.ElectricityData, &d.GasData, &d.HeatData, &d.TransportData} {
		for i := range *list {
			e := &(*list)[i]
			if e.Period == nil && period != nil {
				e.Period = period
			}
			if e.Supplier == nil && supplier != nil {
				e.Supplier = supplier
			}
		}
	}
}

// Scale multiplies the confidence of entries with the given raw unit and
// records the recommendation that caused it.
func (d *ExtractedData) Scale(rawUnit string, factor float64, recommendation string) {
	apply := func(entries []DataEntry) {
		for i := range entries {
			if entries[i].RawUnit != rawUnit {
				continue
			}
			c := entries[i].Confidence * factor
			if c > 1 {
				c = 1
			}
			if c < 0 {
				c = 0
			}
			entries[i].Confidence = c
			entries[i].Recommendation = recommendation
		}
	}
	apply(d.FuelData)
	apply(d.ElectricityData)
	apply(d.GasData)
	apply(d.HeatData)
	apply(d.TransportData)
}

type ParseMetadata struct {
	Encoding          string         `json:"encoding"`
	FormatDetected    string         `json:"format_detected"`
	ProcessingTimeMs  int64          `json:"processing_time_ms"`
	RussianUnitsFound []string       `json:"russian_units_found"`
	DataQuality       DataQuality    `json:"data_quality"`
	Extra             map[string]any `json:"extra,omitempty"`
}

type ParsedDocumentData struct {
	DocumentType  string        `json:"documentType"`
	Confidence    float64       `json:"confidence"`
	ExtractedData ExtractedData `json:"extractedData"`
	Metadata      ParseMetadata `json:"metadata"`
	Text          string        `json:"-"`
}

type ParserResult struct {
	Success        bool                `json:"success"`
	Data           *ParsedDocumentData `json:"data,omitempty"`
	Error          string              `json:"error,omitempty"`
	ProcessingTime time.Duration       `json:"processingTime"`
}

type ParseOptions struct {
	MaxRows            int
	Encoding           string
	SearchRussianUnits bool
	MinConfidence      float64
	Delimiter          string
	Filename           string

	// UserMode is the subscription tier used for OCR provider routing.
	UserMode string
}

func DefaultParseOptions() ParseOptions {
	return ParseOptions{MaxRows: 10000, SearchRussianUnits: true, MinConfidence: 0.1}
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type DocumentRow struct {
	ID           string
	EmailID      *int
	Filename     string
	Format       string
	ParserUsed   string
	Success      bool
	Confidence   float64
	Quality      string
	DocumentType string
	Error        string
	CreatedAt    string
}

type EntryExportRow struct {
	DocumentID     string
	Filename       string
	Category       string
	Value          float64
	Unit           string
	RawUnit        string
	Confidence     float64
	Recommendation string
	Source         string
	Period         string
	Supplier       string
}
