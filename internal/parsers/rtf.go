package parsers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lu4p/cat"
	"github.com/lu4p/cat/rtftxt"

	"esgdocs/internal"
	"esgdocs/internal/chain"
	"esgdocs/internal/detect"
)

const (
	MethodRTFStripper = "stripper"
	MethodRTFText     = "rtftxt"
	MethodRTFCat      = "cat"
)

// RTF tries the control-word stripper first. Library extractors only run when
// it fails; they tend to garble Cyrillic runs encoded with \'hh escapes.
type RTF struct{}

func NewRTF() *RTF { return &RTF{} }

func (p *RTF) Name() string { return detect.ParserRTF }

func (p *RTF) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType, []string{".rtf"}, []string{"application/rtf", "text/rtf"})
}

func (p *RTF) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		text, method, outcomes, err := chain.First(ctx,
			chain.Attempt[string]{Name: MethodRTFStripper, Run: func(context.Context) (string, error) {
				return safely(func() (string, error) { return StripRTF(buf) })
			}},
			chain.Attempt[string]{Name: MethodRTFText, Run: func(context.Context) (string, error) {
				return safely(func() (string, error) {
					out, err := rtftxt.Text(bytes.NewReader(buf))
					if err != nil {
						return "", err
					}
					return nonEmpty(out.String())
				})
			}},
			chain.Attempt[string]{Name: MethodRTFCat, Run: func(context.Context) (string, error) {
				return safely(func() (string, error) {
					out, err := cat.FromBytes(buf)
					if err != nil {
						return "", err
					}
					return nonEmpty(out)
				})
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("rtf extraction failed: %w", err)
		}

		tried := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			tried = append(tried, o.Name)
		}
		ex := newExtraction(opts, string(internal.FormatRTF))
		for _, line := range strings.Split(text, "\n") {
			ex.addRow(line)
		}
		conf := 0.5
		if method == MethodRTFStripper {
			conf = 0.6
		}
		conf += 0.3 * ex.density()
		return ex.finish(string(internal.FormatRTF), "rtf", conf, map[string]any{
			"method":   method,
			"attempts": tried,
		}), nil
	})
}

func nonEmpty(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", errors.New("no text extracted")
	}
	return s, nil
}
