package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"esgdocs/internal"
	"esgdocs/internal/detect"
	"esgdocs/internal/util"
)

var (
	valueKeys = []string{"value", "amount", "quantity", "qty", "значение", "количество", "объем", "объём", "расход"}
	unitKeys  = []string{"unit", "units", "uom", "ед", "единица", "ед_изм", "единица измерения"}
	nameKeys  = []string{"name", "resource", "type", "наименование", "ресурс"}
)

// JSON flattens arbitrarily nested documents into rows. Flat objects become
// one row each; scalars are emitted as "path: value".
type JSON struct{}

func NewJSON() *JSON { return &JSON{} }

func (p *JSON) Name() string { return detect.ParserJSON }

func (p *JSON) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType, []string{".json"}, []string{"application/json", "text/json"})
}

type jsonShape struct {
	depth  int
	leaves int
	nodes  int
}

func (p *JSON) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		enc := opts.Encoding
		if enc == "" {
			enc = detect.DetectEncoding(buf)
		}
		dec := json.NewDecoder(strings.NewReader(detect.Decode(buf, enc)))
		dec.UseNumber()
		var root any
		if err := dec.Decode(&root); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}

		ex := newExtraction(opts, string(internal.FormatJSON))
		shape := &jsonShape{}
		flattenJSON(ex, "", root, 1, shape)
		if ex.data.TotalRows == 0 {
			ex.addRow(string(bytes.TrimSpace(buf)))
		}

		// deeply nested documents carry less structural meaning
		conf := 0.7
		if shape.depth > 3 {
			conf -= min(0.3, 0.05*float64(shape.depth-3))
		}
		if shape.nodes > 0 && float64(shape.leaves)/float64(shape.nodes) < 0.3 {
			conf -= 0.05
		}
		conf += 0.2 * ex.density()
		return ex.finish(string(internal.FormatJSON), enc, conf, map[string]any{
			"depth":  shape.depth,
			"leaves": shape.leaves,
		}), nil
	})
}

func flattenJSON(ex *extraction, path string, v any, depth int, shape *jsonShape) {
	if depth > shape.depth {
		shape.depth = depth
	}
	shape.nodes++
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if !isFlatObject(t) {
			for _, k := range keys {
				flattenJSON(ex, joinPath(path, k), t[k], depth+1, shape)
			}
			return
		}

		parts := make([]string, 0, len(keys))
		labeled := false
		for _, k := range keys {
			parts = append(parts, k+": "+scalarString(t[k]))
			shape.leaves++
			if n, ok := jsonNumber(t[k]); ok && ex.addLabeledValue(k, n) {
				labeled = true
			}
		}
		ex.addRow(strings.Join(parts, " | "))
		if !labeled && !addValueUnitPair(ex, path, t) {
			for _, k := range keys {
				if n, ok := jsonNumber(t[k]); ok {
					ex.addSubstance(k, n)
				}
			}
		}
	case []any:
		for _, item := range t {
			flattenJSON(ex, path, item, depth+1, shape)
		}
	default:
		shape.leaves++
		s := scalarString(t)
		if path == "" {
			ex.addRow(s)
			return
		}
		ex.addRow(path + ": " + s)
		if n, ok := jsonNumber(t); ok {
			key := lastSegment(path)
			if !ex.addLabeledValue(key, n) {
				ex.addSubstance(key, n)
			}
		}
	}
}

// addValueUnitPair handles {"value": 500, "unit": "кВт·ч"} style objects,
// using a name field or the parent key as a substance hint when no unit
// field exists.
func addValueUnitPair(ex *extraction, path string, obj map[string]any) bool {
	raw, ok := lookup(obj, valueKeys)
	if !ok {
		return false
	}
	value, ok := jsonNumber(raw)
	if !ok {
		return false
	}
	if unit, ok := lookup(obj, unitKeys); ok {
		if ex.addLabeledValue(scalarString(unit), value) {
			return true
		}
	}
	if name, ok := lookup(obj, nameKeys); ok {
		if ex.addSubstance(scalarString(name), value) {
			return true
		}
	}
	if path != "" {
		ex.addSubstance(lastSegment(path), value)
	}
	return true
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, want := range keys {
		for k, v := range obj {
			if strings.ToLower(strings.TrimSpace(k)) == want {
				return v, true
			}
		}
	}
	return nil, false
}

func jsonNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		if !isNumericCell(t) {
			return 0, false
		}
		return util.ParseNumber(t)
	}
	return 0, false
}

func isFlatObject(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for _, v := range m {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}
