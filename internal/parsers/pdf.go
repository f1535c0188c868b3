package parsers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledongthuc/pdf"

	"esgdocs/internal"
	"esgdocs/internal/detect"
	"esgdocs/internal/util"
)

// ErrNoTextLayer is returned for PDFs whose pages carry no extractable text,
// typically scans that need OCR.
var ErrNoTextLayer = errors.New("pdf has no text layer")

// PDF reads the text layer only. Rasterising scans is left to the OCR parser.
type PDF struct{}

func NewPDF() *PDF { return &PDF{} }

func (p *PDF) Name() string { return detect.ParserPDF }

func (p *PDF) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType, []string{".pdf"}, []string{"application/pdf"})
}

func (p *PDF) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		r, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
		if err != nil {
			return nil, fmt.Errorf("open pdf: %w", err)
		}

		ex := newExtraction(opts, string(internal.FormatPDF))
		pages, textPages, lines := r.NumPage(), 0, 0
		for i := 1; i <= pages; i++ {
			if err := checkCtx(ctx); err != nil {
				return nil, err
			}
			if ex.full() {
				break
			}
			page := r.Page(i)
			if page.V.IsNull() {
				continue
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				continue
			}
			pageLines := util.SplitLines(text)
			if len(pageLines) > 0 {
				textPages++
			}
			for _, line := range pageLines {
				lines++
				ex.addRow(line)
			}
		}
		if lines == 0 {
			return nil, ErrNoTextLayer
		}

		conf := 0.4
		conf += min(0.1, 0.02*float64(textPages))
		switch {
		case lines >= 20:
			conf += 0.1
		case lines >= 5:
			conf += 0.05
		}
		conf += 0.3 * ex.density()
		return ex.finish(string(internal.FormatPDF), "binary", conf, map[string]any{
			"pages":      pages,
			"text_pages": textPages,
			"lines":      lines,
		}), nil
	})
}

