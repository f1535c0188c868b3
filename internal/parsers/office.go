package parsers

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/beevik/etree"
	"github.com/lu4p/cat"

	"esgdocs/internal"
	"esgdocs/internal/chain"
	"esgdocs/internal/detect"
)

const (
	MethodOfficeCat = "cat"
	MethodOfficeZip = "zipxml"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

type SegmentRole string

const (
	RoleHeading   SegmentRole = "heading"
	RoleTable     SegmentRole = "table"
	RoleList      SegmentRole = "list"
	RoleParagraph SegmentRole = "paragraph"
)

// Office extracts DOCX, ODT and PPTX text and classifies each paragraph before
// unit extraction.
type Office struct{}

func NewOffice() *Office { return &Office{} }

func (p *Office) Name() string { return detect.ParserOffice }

func (p *Office) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType,
		[]string{".docx", ".odt", ".pptx", ".doc"},
		[]string{
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
			"application/vnd.oasis.opendocument.text",
			"application/msword",
		})
}

func (p *Office) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		if !bytes.HasPrefix(buf, zipMagic) && !bytes.HasPrefix(buf, oleMagic) {
			return nil, errors.New("not an office container")
		}
		text, method, _, err := chain.First(ctx,
			chain.Attempt[string]{Name: MethodOfficeCat, Run: func(context.Context) (string, error) {
				return safely(func() (string, error) {
					out, err := cat.FromBytes(buf)
					if err != nil {
						return "", err
					}
					return nonEmpty(out)
				})
			}},
			chain.Attempt[string]{Name: MethodOfficeZip, Run: func(context.Context) (string, error) {
				return safely(func() (string, error) { return officeZipText(buf) })
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("office extraction failed: %w", err)
		}

		ex := newExtraction(opts, "office")
		roles := map[SegmentRole]int{}
		tableRows := [][]string{}
		flushTable := func() {
			if len(tableRows) > 0 {
				processTable(ex, tableRows)
				tableRows = tableRows[:0]
			}
		}
		for _, seg := range Segments(text) {
			roles[seg.Role]++
			if seg.Role == RoleTable {
				tableRows = append(tableRows, splitTableLine(seg.Text))
				continue
			}
			flushTable()
			ex.addRow(seg.Text)
		}
		flushTable()
		if ex.data.TotalRows == 0 {
			return nil, errors.New("office document contains no text")
		}

		conf := 0.55 + 0.3*ex.density()
		if roles[RoleTable] > 0 {
			conf += 0.05
		}
		segments := map[string]int{}
		for role, n := range roles {
			segments[string(role)] = n
		}
		return ex.finish(string(officeFormat(buf, opts.Filename)), "utf-8", conf, map[string]any{
			"method":   method,
			"segments": segments,
		}), nil
	})
}

type Segment struct {
	Role SegmentRole
	Text string
}

var (
	reListItem     = regexp.MustCompile(`^(?:[-•*–·▪]\s+|\d{1,3}[.)]\s+|[a-zа-я][.)]\s+)`)
	reHeadingNum   = regexp.MustCompile(`^(?:\d+(?:\.\d+)*\.?\s+|(?i:раздел|глава|section|chapter)\s+\S+)`)
	reTableGap     = regexp.MustCompile(`\s{3,}`)
	reSentenceStop = regexp.MustCompile(`[.;:,]$`)
)

// Segments splits extracted office text into non-empty paragraphs and assigns
// each a role from its shape.
func Segments(text string) []Segment {
	out := []Segment{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, Segment{Role: classifySegment(line, trimmed), Text: trimmed})
	}
	return out
}

func classifySegment(raw, trimmed string) SegmentRole {
	if strings.Contains(raw, "\t") || strings.Contains(trimmed, " | ") || len(reTableGap.FindAllStringIndex(trimmed, -1)) >= 2 {
		return RoleTable
	}
	if reHeadingNum.MatchString(trimmed) && isHeadingShape(trimmed) {
		return RoleHeading
	}
	if reListItem.MatchString(trimmed) {
		return RoleList
	}
	if isHeadingShape(trimmed) && (isUpper(trimmed) || len([]rune(trimmed)) <= 60) {
		return RoleHeading
	}
	return RoleParagraph
}

func isHeadingShape(s string) bool {
	return len([]rune(s)) <= 80 && !reSentenceStop.MatchString(s) && strings.Count(s, " ") <= 10
}

func isUpper(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters > 0
}

func splitTableLine(s string) []string {
	var parts []string
	switch {
	case strings.Contains(s, "|"):
		parts = strings.Split(s, "|")
	case strings.Contains(s, "\t"):
		parts = strings.Split(s, "\t")
	default:
		parts = reTableGap.Split(s, -1)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func officeFormat(buf []byte, filename string) internal.DocumentFormat {
	if f := detect.New(detect.Options{}).Detect(filename, buf, "").Format; f == internal.FormatODT {
		return f
	}
	return internal.FormatDOCX
}

var officeParts = []struct {
	prefix    string
	paragraph string
	row       string
	cell      string
}{
	{"word/document.xml", "p", "tr", "tc"},
	{"content.xml", "p", "table-row", "table-cell"},
	{"ppt/slides/slide", "p", "tr", "tc"},
}

// officeZipText reads paragraph and table text straight from the package XML
// when the general extractor fails.
func officeZipText(buf []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return "", err
	}
	files := append([]*zip.File(nil), zr.File...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var sb strings.Builder
	for _, part := range officeParts {
		for _, f := range files {
			if !strings.HasPrefix(f.Name, part.prefix) || !strings.HasSuffix(f.Name, ".xml") {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", err
			}
			doc := etree.NewDocument()
			if err := doc.ReadFromBytes(data); err != nil {
				return "", fmt.Errorf("%s: %w", f.Name, err)
			}
			writeOfficeText(&sb, doc.Root(), part.paragraph, part.row, part.cell)
		}
	}
	return nonEmpty(sb.String())
}

func writeOfficeText(sb *strings.Builder, el *etree.Element, paragraph, row, cell string) {
	if el == nil {
		return
	}
	switch el.Tag {
	case row:
		cells := []string{}
		for _, c := range el.ChildElements() {
			if c.Tag == cell {
				cells = append(cells, strings.TrimSpace(innerText(c)))
			}
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteByte('\n')
		return
	case paragraph, "h":
		sb.WriteString(strings.TrimSpace(innerText(el)))
		sb.WriteByte('\n')
		return
	}
	for _, c := range el.ChildElements() {
		writeOfficeText(sb, c, paragraph, row, cell)
	}
}

func innerText(el *etree.Element) string {
	var sb strings.Builder
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				sb.WriteString(t.Data)
			case *etree.Element:
				switch t.Tag {
				case "tab":
					sb.WriteByte('\t')
				case "br", "line-break":
					sb.WriteByte(' ')
				case "s":
					sb.WriteByte(' ')
				default:
					walk(t)
				}
			}
		}
	}
	walk(el)
	return sb.String()
}
