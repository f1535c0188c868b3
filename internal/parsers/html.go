package parsers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"esgdocs/internal"
	"esgdocs/internal/detect"
	"esgdocs/internal/util"
)

// HTML extracts table rows first, drops the tables, then reads the remaining
// body text line by line.
type HTML struct{}

func NewHTML() *HTML { return &HTML{} }

func (p *HTML) Name() string { return detect.ParserHTML }

func (p *HTML) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType, []string{".html", ".htm", ".xhtml"}, []string{"text/html", "application/xhtml+xml"})
}

func (p *HTML) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		enc := opts.Encoding
		if enc == "" {
			enc = detect.DetectEncoding(buf)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(detect.Decode(buf, enc)))
		if err != nil {
			return nil, fmt.Errorf("invalid html: %w", err)
		}
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		doc.Find("script,style,noscript,template").Remove()

		ex := newExtraction(opts, string(internal.FormatHTML))
		tables := 0
		doc.Find("table").Each(func(_ int, table *goquery.Selection) {
			rows := [][]string{}
			table.Find("tr").Each(func(_ int, row *goquery.Selection) {
				cells := []string{}
				row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
					cells = append(cells, util.NormalizeSpaces(cell.Text()))
				})
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
			})
			if len(rows) > 0 {
				tables++
				processTable(ex, rows)
			}
		})
		doc.Find("table").Remove()

		doc.Find("br").ReplaceWithHtml("\n")
		doc.Find("p,div,li,h1,h2,h3,h4,h5,h6,tr,section,article,header,footer,blockquote,pre").Each(func(_ int, s *goquery.Selection) {
			s.AppendHtml("\n")
		})
		body := doc.Find("body")
		text := body.Text()
		if body.Length() == 0 {
			text = doc.Text()
		}
		for _, line := range util.SplitLines(text) {
			ex.addRow(util.NormalizeSpaces(line))
		}
		if ex.data.TotalRows == 0 {
			return nil, fmt.Errorf("html has no text content")
		}

		conf := 0.5
		if tables > 0 {
			conf += 0.15
		}
		conf += 0.25 * ex.density()
		title := util.NormalizeSpaces(doc.Find("title").First().Text())
		return ex.finish(string(internal.FormatHTML), enc, conf, map[string]any{
			"tables": tables,
			"title":  title,
		}), nil
	})
}
