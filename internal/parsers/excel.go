package parsers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"esgdocs/internal"
	"esgdocs/internal/chain"
	"esgdocs/internal/detect"
)

const (
	methodExcelize = "excelize"
	methodXLS      = "xls"
)

type sheet struct {
	name string
	rows [][]string
}

// Excel reads XLSX through excelize and falls back to the legacy BIFF reader
// for old .xls workbooks.
type Excel struct{}

func NewExcel() *Excel { return &Excel{} }

func (p *Excel) Name() string { return detect.ParserExcel }

func (p *Excel) CanParse(filename, mimeType string) bool {
	return allowlisted(filename, mimeType,
		[]string{".xlsx", ".xlsm", ".xls"},
		[]string{"application/vnd.ms-excel", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"})
}

func (p *Excel) Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult {
	start := time.Now()
	return guard(start, func() (*internal.ParsedDocumentData, error) {
		sheets, method, _, err := chain.First(ctx,
			chain.Attempt[[]sheet]{Name: methodExcelize, Run: func(context.Context) ([]sheet, error) {
				return safely(func() ([]sheet, error) { return readXLSX(buf, opts.MaxRows) })
			}},
			chain.Attempt[[]sheet]{Name: methodXLS, Run: func(context.Context) ([]sheet, error) {
				return safely(func() ([]sheet, error) { return readXLS(buf, opts.MaxRows) })
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("read workbook: %w", err)
		}

		ex := newExtraction(opts, string(internal.FormatExcel))
		headers := 0
		for _, s := range sheets {
			if err := checkCtx(ctx); err != nil {
				return nil, err
			}
			if processTable(ex, s.rows).headerFound {
				headers++
			}
		}
		if ex.data.TotalRows == 0 {
			return nil, errors.New("workbook has no data rows")
		}

		conf := 0.6
		if len(sheets) > 1 {
			conf += min(0.1, 0.05*float64(len(sheets)-1))
		}
		if ex.data.TotalRows >= 10 {
			conf += 0.1
		} else if ex.data.TotalRows >= 3 {
			conf += 0.05
		}
		if headers > 0 {
			conf += 0.05
		}
		conf += 0.15 * ex.density()

		names := make([]string, 0, len(sheets))
		for _, s := range sheets {
			names = append(names, s.name)
		}
		return ex.finish(string(internal.FormatExcel), "binary", conf, map[string]any{
			"method": method,
			"sheets": names,
		}), nil
	})
}

func readXLSX(buf []byte, maxRows int) ([]sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []sheet{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if maxRows > 0 && len(rows) > maxRows {
			rows = rows[:maxRows]
		}
		out = append(out, sheet{name: name, rows: rows})
	}
	if len(out) == 0 {
		return nil, errors.New("no readable sheets")
	}
	return out, nil
}

func readXLS(buf []byte, maxRows int) ([]sheet, error) {
	wb, err := xls.OpenReader(bytes.NewReader(buf), "utf-8")
	if err != nil {
		return nil, err
	}
	out := []sheet{}
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		rows := [][]string{}
		for r := 0; r <= int(ws.MaxRow); r++ {
			if maxRows > 0 && len(rows) >= maxRows {
				break
			}
			row := ws.Row(r)
			if row == nil {
				continue
			}
			cells := []string{}
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		out = append(out, sheet{name: ws.Name, rows: rows})
	}
	if len(out) == 0 {
		return nil, errors.New("no readable sheets")
	}
	return out, nil
}
