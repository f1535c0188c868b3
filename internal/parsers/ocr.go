package parsers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"esgdocs/internal"
	"esgdocs/internal/detect"
	"esgdocs/internal/ocr"
)

// OCR recognizes text in images and scanned PDFs through an ocr.Service and
// runs the shared unit extraction on the result.
type OCR struct {
	svc *ocr.Service
}

func NewOCR(svc *ocr.Service) *OCR { return &OCR{svc: svc} }

func (p *OCR) Name() string { return detect.ParserOCR }

func (p *OCR) CanParse(filename, mimeType string) bool {
	if strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return true
	}
	return allowlisted(filename, mimeType,
		[]string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif", ".webp"},
		[]string{"application/pdf"})
}

func (p *OCR) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		if p.svc == nil {
			return nil, fmt.Errorf("ocr: %w", ocr.ErrProviderUnavailable)
		}
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		mime := "application/octet-stream"
		if kind, err := filetype.Match(buf); err == nil && kind != filetype.Unknown {
			mime = kind.MIME.Value
		}
		var mode ocr.UserMode
		if opts.UserMode != "" {
			mode = ocr.ParseUserMode(opts.UserMode)
		}
		res, err := p.svc.Process(ctx, ocr.Request{Image: buf, MIMEType: mime, Mode: mode})
		if err != nil {
			return nil, fmt.Errorf("ocr: %w", err)
		}

		var er ocr.EngineResult
		switch v := res.(type) {
		case ocr.EngineResult:
			er = v
		case ocr.StubResult:
			return nil, fmt.Errorf("ocr: %s", v.Warning)
		case ocr.FailedResult:
			return nil, fmt.Errorf("ocr: recognition failed: %w", v.Err)
		default:
			return nil, errors.New("ocr: unexpected result")
		}
		if strings.TrimSpace(er.Text) == "" {
			return nil, errors.New("ocr: no text recognized")
		}

		format := string(internal.FormatImage)
		if mime == "application/pdf" {
			format = string(internal.FormatPDF)
		}
		data := ExtractFromText(er.Text, format, "utf-8", 0.2+0.4*er.Confidence, opts, map[string]any{
			"method":         detect.ParserOCR,
			"ocr_provider":   er.Provider,
			"ocr_confidence": er.Confidence,
			"preprocessed":   er.Preprocessed,
			"words":          er.Words,
		})
		return data, nil
	})
}
