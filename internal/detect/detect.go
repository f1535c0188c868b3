// Package detect classifies raw document bytes into a format and derives the
// parser strategy for it.
package detect

import (
	"bytes"
	"encoding/json"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"

	"esgdocs/internal"
)

const (
	sniffLen      = 2048
	containerScan = 8192
)

var (
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
	zipMagic    = []byte("PK\x03\x04")
	ole2Magic   = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	reJSONPair  = regexp.MustCompile(`"[^"\n]+"\s*:`)
	reXMLTagged = regexp.MustCompile(`(?s)^<([A-Za-z_][\w.\-:]*)[^>]*>.*</([A-Za-z_][\w.\-:]*)>\s*$`)
)

var mimeTable = map[string]candidate{
	"text/csv":                  {internal.FormatCSV, 0.9},
	"application/csv":           {internal.FormatCSV, 0.9},
	"text/tab-separated-values": {internal.FormatTSV, 0.9},
	"application/vnd.ms-excel":  {internal.FormatExcel, 0.9},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {internal.FormatExcel, 0.9},
	"application/json":          {internal.FormatJSON, 0.9},
	"application/xml":           {internal.FormatXML, 0.9},
	"text/xml":                  {internal.FormatXML, 0.9},
	"text/html":                 {internal.FormatHTML, 0.9},
	"application/xhtml+xml":     {internal.FormatHTML, 0.9},
	"application/pdf":           {internal.FormatPDF, 0.9},
	"application/rtf":           {internal.FormatRTF, 0.9},
	"text/rtf":                  {internal.FormatRTF, 0.9},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {internal.FormatDOCX, 0.9},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {internal.FormatDOCX, 0.9},
	"application/vnd.oasis.opendocument.text":                                   {internal.FormatODT, 0.9},
	"text/plain":                {internal.FormatTXT, 0.5},
}

var extTable = map[string]candidate{
	".csv":  {internal.FormatCSV, 0.9},
	".tsv":  {internal.FormatTSV, 0.9},
	".tab":  {internal.FormatTSV, 0.8},
	".xlsx": {internal.FormatExcel, 0.9},
	".xlsm": {internal.FormatExcel, 0.85},
	".xls":  {internal.FormatExcel, 0.85},
	".json": {internal.FormatJSON, 0.9},
	".xml":  {internal.FormatXML, 0.85},
	".html": {internal.FormatHTML, 0.85},
	".htm":  {internal.FormatHTML, 0.85},
	".pdf":  {internal.FormatPDF, 0.9},
	".docx": {internal.FormatDOCX, 0.9},
	".pptx": {internal.FormatDOCX, 0.75},
	".doc":  {internal.FormatDOCX, 0.7},
	".odt":  {internal.FormatODT, 0.9},
	".rtf":  {internal.FormatRTF, 0.9},
	".txt":  {internal.FormatTXT, 0.7},
	".text": {internal.FormatTXT, 0.7},
	".jpg":  {internal.FormatImage, 0.8},
	".jpeg": {internal.FormatImage, 0.8},
	".png":  {internal.FormatImage, 0.8},
	".tif":  {internal.FormatImage, 0.8},
	".tiff": {internal.FormatImage, 0.8},
	".bmp":  {internal.FormatImage, 0.8},
	".gif":  {internal.FormatImage, 0.8},
	".webp": {internal.FormatImage, 0.8},
}

type candidate struct {
	format     internal.DocumentFormat
	confidence float64
}

type Options struct {
	// Strict stops at the first step whose confidence exceeds StrictThreshold.
	Strict          bool
	StrictThreshold float64
}

type Detector struct {
	opts Options
}

func New(opts Options) *Detector {
	if opts.StrictThreshold <= 0 {
		opts.StrictThreshold = 0.85
	}
	return &Detector{opts: opts}
}

// Detect never fails: unrecognised input comes back as low-confidence txt or
// unknown.
func (d *Detector) Detect(filename string, buf []byte, mimeType string) internal.FormatInfo {
	steps := []func() (candidate, bool){
		func() (candidate, bool) { return fromMIME(mimeType) },
		func() (candidate, bool) { return fromMagic(filename, buf) },
		func() (candidate, bool) { return fromExtension(filename) },
		func() (candidate, bool) { return fromContent(buf) },
	}

	var best candidate
	found := false
	for _, step := range steps {
		c, ok := step()
		if !ok {
			continue
		}
		if !found || c.confidence > best.confidence {
			best, found = c, true
		}
		if d.opts.Strict && c.confidence > d.opts.StrictThreshold {
			break
		}
	}
	if !found {
		if LooksBinary(buf) {
			best = candidate{internal.FormatUnknown, 0.1}
		} else {
			best = candidate{internal.FormatTXT, 0.3}
		}
	}

	info := internal.FormatInfo{
		Format:     best.format,
		Confidence: best.confidence,
		MIMEType:   baseMIME(mimeType),
		Encoding:   encodingFor(best.format, buf),
	}
	if best.format == internal.FormatCSV || best.format == internal.FormatTSV {
		text := Decode(head(buf, 64*1024), info.Encoding)
		if delim, _ := InferDelimiter(text); delim != 0 {
			info.Delimiter = string(delim)
		}
	}
	info.Characteristics = characteristics(best.format, buf)
	info.Strategy = Strategy(info)
	return info
}

func fromMIME(mimeType string) (candidate, bool) {
	base := baseMIME(mimeType)
	if base == "" {
		return candidate{}, false
	}
	if c, ok := mimeTable[base]; ok {
		return c, true
	}
	if strings.HasPrefix(base, "image/") {
		return candidate{internal.FormatImage, 0.9}, true
	}
	return candidate{}, false
}

func fromMagic(filename string, buf []byte) (candidate, bool) {
	h := bytes.TrimPrefix(head(buf, sniffLen), utf8BOM)
	if len(h) == 0 {
		return candidate{}, false
	}
	if bytes.HasPrefix(h, []byte("%PDF")) {
		return candidate{internal.FormatPDF, 0.95}, true
	}
	if bytes.HasPrefix(h, []byte(`{\rtf`)) {
		return candidate{internal.FormatRTF, 0.95}, true
	}
	if bytes.HasPrefix(h, zipMagic) {
		return fromContainer(filename, head(buf, containerScan))
	}
	if bytes.HasPrefix(h, ole2Magic) {
		if c, ok := fromExtension(filename); ok {
			return c, true
		}
		return candidate{internal.FormatExcel, 0.5}, true
	}
	if filetype.IsImage(h) {
		return candidate{internal.FormatImage, 0.95}, true
	}
	lower := bytes.ToLower(h)
	if bytes.Contains(lower, []byte("<html")) || bytes.Contains(lower, []byte("<!doctype html")) {
		return candidate{internal.FormatHTML, 0.9}, true
	}
	if bytes.HasPrefix(bytes.TrimSpace(h), []byte("<?xml")) {
		return candidate{internal.FormatXML, 0.85}, true
	}
	return candidate{}, false
}

// fromContainer disambiguates ZIP based formats.
func fromContainer(filename string, h []byte) (candidate, bool) {
	if bytes.Contains(h, []byte("application/vnd.oasis.opendocument.text")) {
		return candidate{internal.FormatODT, 0.95}, true
	}
	if kind, err := filetype.Match(h); err == nil {
		switch kind.Extension {
		case "xlsx":
			return candidate{internal.FormatExcel, 0.95}, true
		case "docx", "pptx":
			return candidate{internal.FormatDOCX, 0.95}, true
		}
	}
	switch {
	case bytes.Contains(h, []byte("xl/")):
		return candidate{internal.FormatExcel, 0.9}, true
	case bytes.Contains(h, []byte("word/")), bytes.Contains(h, []byte("ppt/")):
		return candidate{internal.FormatDOCX, 0.9}, true
	}
	if c, ok := fromExtension(filename); ok {
		return c, true
	}
	return candidate{internal.FormatUnknown, 0.2}, true
}

func fromExtension(filename string) (candidate, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	c, ok := extTable[ext]
	return c, ok
}

func fromContent(buf []byte) (candidate, bool) {
	if len(buf) == 0 || LooksBinary(buf) {
		return candidate{}, false
	}
	sample := head(buf, 64*1024)
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(sample, utf8BOM))
	if len(trimmed) == 0 {
		return candidate{}, false
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		if len(buf) == len(sample) && json.Valid(bytes.TrimPrefix(buf, utf8BOM)) {
			return candidate{internal.FormatJSON, 0.95}, true
		}
		if reJSONPair.Match(trimmed) {
			return candidate{internal.FormatJSON, 0.6}, true
		}
	}

	if trimmed[0] == '<' {
		lower := bytes.ToLower(trimmed)
		if bytes.Contains(lower, []byte("<body")) || bytes.Contains(lower, []byte("<table")) || bytes.Contains(lower, []byte("<div")) {
			return candidate{internal.FormatHTML, 0.7}, true
		}
		if reXMLTagged.Match(trimmed) {
			return candidate{internal.FormatXML, 0.6}, true
		}
	}

	text := Decode(sample, DetectEncoding(sample))
	if delim, score := InferDelimiter(text); delim != 0 && score >= 1 {
		conf := 0.5 + 0.1*score
		if conf > 0.9 {
			conf = 0.9
		}
		if delim == '\t' {
			return candidate{internal.FormatTSV, conf}, true
		}
		return candidate{internal.FormatCSV, conf}, true
	}
	return candidate{}, false
}

func characteristics(format internal.DocumentFormat, buf []byte) internal.FormatCharacteristics {
	ch := internal.FormatCharacteristics{SupportedByParser: format != internal.FormatUnknown}
	switch format {
	case internal.FormatCSV, internal.FormatTSV, internal.FormatJSON, internal.FormatXML:
		ch.HasStructure, ch.IsTextBased = true, true
	case internal.FormatExcel:
		ch.HasStructure = true
	case internal.FormatHTML, internal.FormatRTF, internal.FormatTXT:
		ch.IsTextBased = true
	case internal.FormatPDF:
		ch.RequiresOCR = !bytes.Contains(buf, []byte("/Font"))
	case internal.FormatImage:
		ch.RequiresOCR = true
	}
	return ch
}

func encodingFor(format internal.DocumentFormat, buf []byte) string {
	switch format {
	case internal.FormatPDF, internal.FormatExcel, internal.FormatDOCX, internal.FormatODT, internal.FormatImage, internal.FormatUnknown:
		return "binary"
	}
	return DetectEncoding(buf)
}

func baseMIME(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(mimeType)
}

// LooksBinary reports whether the sniffed prefix holds NUL bytes or mostly
// control characters.
func LooksBinary(buf []byte) bool {
	h := head(buf, sniffLen)
	if bytes.HasPrefix(h, []byte{0xFF, 0xFE}) || bytes.HasPrefix(h, []byte{0xFE, 0xFF}) {
		return false
	}
	if bytes.IndexByte(h, 0) >= 0 {
		return true
	}
	if utf8.Valid(h) {
		return false
	}
	ctrl := 0
	for _, b := range h {
		if b < 0x09 || (b > 0x0D && b < 0x20) {
			ctrl++
		}
	}
	return ctrl*10 > len(h)
}

func head(buf []byte, n int) []byte {
	if len(buf) > n {
		return buf[:n]
	}
	return buf
}
