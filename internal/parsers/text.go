package parsers

import (
	"context"
	"errors"
	"strings"
	"time"

	"esgdocs/internal"
	"esgdocs/internal/detect"
)

// Text is the last-resort parser for anything that decodes to readable text.
type Text struct{}

func NewText() *Text { return &Text{} }

func (p *Text) Name() string { return detect.ParserText }

func (p *Text) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType, []string{".txt", ".text", ".log", ".md", ".dat"}, []string{"text/plain", "text/markdown"})
}

func (p *Text) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		if detect.LooksBinary(buf) {
			return nil, errors.New("binary content is not text")
		}
		enc := opts.Encoding
		if enc == "" {
			enc = detect.DetectEncoding(buf)
		}
		text := detect.Decode(buf, enc)
		if strings.TrimSpace(text) == "" {
			return nil, errors.New("empty text input")
		}
		data := ExtractFromText(text, string(internal.FormatTXT), enc, 0.4, opts, nil)
		if data.ExtractedData.TotalRows == 0 {
			return nil, errors.New("no text lines")
		}
		return data, nil
	})
}
