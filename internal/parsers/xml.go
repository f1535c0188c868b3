package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/htmlindex"

	"esgdocs/internal"
	"esgdocs/internal/detect"
	"esgdocs/internal/vocab"
)

var unitAttrs = []string{"unit", "units", "uom", "ed", "ед", "единица"}

// XML walks the element tree. Leaf elements become "tag: text" rows; tags or
// unit attributes naming a unit or substance are read structurally before the
// shared regex pass runs over the rows.
type XML struct{}

func NewXML() *XML { return &XML{} }

func (p *XML) Name() string { return detect.ParserXML }

func (p *XML) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType, []string{".xml"}, []string{"application/xml", "text/xml"})
}

func (p *XML) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		doc := etree.NewDocument()
		doc.ReadSettings.CharsetReader = charsetReader
		doc.ReadSettings.Permissive = true
		if err := doc.ReadFromBytes(buf); err != nil {
			return nil, fmt.Errorf("invalid xml: %w", err)
		}
		root := doc.Root()
		if root == nil {
			return nil, fmt.Errorf("xml has no root element")
		}
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}

		ex := newExtraction(opts, string(internal.FormatXML))
		structural := walkXML(ex, root)

		conf := 0.65
		if structural > 0 {
			conf += 0.1
		}
		conf += 0.2 * ex.density()
		enc := "utf-8"
		for _, tok := range doc.Child {
			if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
				if v := procInstAttr(pi.Inst, "encoding"); v != "" {
					enc = strings.ToLower(v)
				}
			}
		}
		return ex.finish(string(internal.FormatXML), enc, conf, map[string]any{
			"root":       root.Tag,
			"structural": structural,
		}), nil
	})
}

// walkXML returns the number of values found by the structural search.
func walkXML(ex *extraction, el *etree.Element) int {
	children := el.ChildElements()
	if len(children) == 0 {
		text := strings.TrimSpace(el.Text())
		if text == "" {
			return 0
		}
		ex.addRow(el.Tag + ": " + text)
		return structuralValue(ex, el, text)
	}

	found := 0
	if text := strings.TrimSpace(el.Text()); text != "" {
		ex.addRow(text)
	}
	for _, child := range children {
		found += walkXML(ex, child)
		if tail := strings.TrimSpace(child.Tail()); tail != "" {
			ex.addRow(tail)
		}
	}
	return found
}

func structuralValue(ex *extraction, el *etree.Element, text string) int {
	if !isNumericCell(text) {
		return 0
	}
	for _, name := range unitAttrs {
		if attr := el.SelectAttrValue(name, ""); attr != "" {
			if ex.addLabeled(attr, text) {
				return 1
			}
		}
	}
	if ex.addLabeled(el.Tag, text) {
		return 1
	}
	if !vocabTag(el.Tag) {
		return 0
	}
	if v, ok := parseCell(text); ok && ex.addSubstance(el.Tag, v) {
		return 1
	}
	return 0
}

func vocabTag(tag string) bool {
	_, ok := vocab.CategoryOf(strings.ReplaceAll(strings.ToLower(tag), "_", " "))
	return ok
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported xml charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func procInstAttr(inst, name string) string {
	idx := strings.Index(inst, name+"=")
	if idx < 0 {
		return ""
	}
	rest := inst[idx+len(name)+1:]
	if rest == "" {
		return ""
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return ""
	}
	end := strings.IndexByte(rest[1:], quote)
	if end < 0 {
		return ""
	}
	return rest[1 : end+1]
}
