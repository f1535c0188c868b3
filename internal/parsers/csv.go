package parsers

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"esgdocs/internal"
	"esgdocs/internal/detect"
)

// CSV parses comma, semicolon, tab and pipe delimited text. The delimiter is
// inferred exactly as the format detector does.
type CSV struct{}

func NewCSV() *CSV { return &CSV{} }

func (p *CSV) Name() string { return detect.ParserCSV }

func (p *CSV) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType,
		[]string{".csv", ".tsv", ".tab"},
		[]string{"text/csv", "application/csv", "text/tab-separated-values"})
}

func (p *CSV) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		enc := opts.Encoding
		if enc == "" {
			enc = detect.DetectEncoding(buf)
		}
		text := detect.Decode(buf, enc)
		if strings.TrimSpace(text) == "" {
			return nil, errors.New("empty csv input")
		}

		delim := firstRune(opts.Delimiter)
		if delim == 0 {
			delim, _ = detect.InferDelimiter(text)
		}
		if delim == 0 {
			delim = ','
		}

		r := csv.NewReader(strings.NewReader(text))
		r.Comma = delim
		r.LazyQuotes = true
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true

		rows := [][]string{}
		for {
			if opts.MaxRows > 0 && len(rows) > opts.MaxRows {
				break
			}
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if len(rows) == 0 {
					return nil, err
				}
				break
			}
			rows = append(rows, rec)
		}
		if len(rows) == 0 {
			return nil, errors.New("no csv records")
		}

		format := string(internal.FormatCSV)
		if delim == '\t' {
			format = string(internal.FormatTSV)
		}
		ex := newExtraction(opts, format)
		stats := processTable(ex, rows)

		conf := 0.5
		if stats.headerFound {
			conf += 0.15
		}
		if stats.consistent && stats.dataRows >= 2 {
			conf += 0.1
		}
		conf += 0.15 * ex.density()
		return ex.finish(format, enc, conf, map[string]any{
			"delimiter": string(delim),
			"columns":   len(rows[0]),
		}), nil
	})
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
