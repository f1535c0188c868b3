package parsers

import (
	"strings"

	"esgdocs/internal/util"
)

var (
	qtyHeaderProbes  = []string{"кол", "объем", "объём", "расход", "потреблен", "значен", "qty", "quantity", "amount", "value"}
	unitHeaderProbes = []string{"ед", "изм", "unit"}
)

type tableStats struct {
	headerFound bool
	dataRows    int
	consistent  bool
}

// processTable feeds rows of one sheet or delimited file into ex. The first
// non-numeric row among the first three is taken as the header.
func processTable(ex *extraction, rows [][]string) tableStats {
	stats := tableStats{consistent: true}
	var headers []string
	qtyIdx, unitIdx := -1, -1
	width := -1

	for i, row := range rows {
		if ex.full() {
			break
		}
		cells := normalizeCells(row)
		if isEmptyRow(cells) {
			continue
		}
		if headers == nil && i < 3 && numericCells(cells) == 0 && nonEmptyCells(cells) >= 2 {
			headers = cells
			stats.headerFound = true
			ex.data.Headers = append(ex.data.Headers, cells...)
			qtyIdx, unitIdx = inferColumns(cells)
			continue
		}

		if width < 0 {
			width = len(cells)
		} else if len(cells) != width {
			stats.consistent = false
		}
		stats.dataRows++
		ex.addRow(strings.Join(trimTrailingEmpty(cells), " | "))

		for c, cell := range cells {
			if c < len(headers) && c != unitIdx {
				ex.addLabeled(headers[c], cell)
			}
		}
		if unitIdx >= 0 && unitIdx < len(cells) {
			value := pickCell(cells, qtyIdx, -1)
			if value == "" || !isNumericCell(value) {
				value = firstNumericCell(cells, unitIdx)
			}
			if value != "" && (qtyIdx < 0 || qtyIdx >= len(headers) || !labeledHeader(headers[qtyIdx])) {
				ex.addLabeled(cells[unitIdx], value)
			}
		}
	}
	return stats
}

func inferColumns(headers []string) (qtyIdx, unitIdx int) {
	norm := make([]string, 0, len(headers))
	for _, h := range headers {
		norm = append(norm, strings.ToLower(h))
	}
	unitIdx = findHeaderIndex(norm, unitHeaderProbes)
	qtyIdx = findHeaderIndex(norm, qtyHeaderProbes)
	if qtyIdx == unitIdx {
		qtyIdx = -1
	}
	return
}

func labeledHeader(h string) bool {
	_, _, _, ok := UnitFromLabel(h)
	return ok
}

func findHeaderIndex(headers []string, probes []string) int {
	for i, h := range headers {
		for _, probe := range probes {
			if strings.HasPrefix(h, probe) || strings.Contains(h, " "+probe) || strings.Contains(h, "."+probe) {
				return i
			}
		}
	}
	return -1
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

func firstNumericCell(cells []string, skip int) string {
	for i, c := range cells {
		if i != skip && isNumericCell(c) {
			return c
		}
	}
	return ""
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(c))
	}
	return out
}

func trimTrailingEmpty(cells []string) []string {
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}

func isEmptyRow(cells []string) bool {
	return nonEmptyCells(cells) == 0
}

func nonEmptyCells(cells []string) int {
	n := 0
	for _, c := range cells {
		if c != "" {
			n++
		}
	}
	return n
}

func numericCells(cells []string) int {
	n := 0
	for _, c := range cells {
		if isNumericCell(c) {
			n++
		}
	}
	return n
}
