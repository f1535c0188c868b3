package parsers

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"esgdocs/internal"
)

func mkXLSX(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName(f.GetSheetName(0), name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, f.SetCellValue(name, cell, v))
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	_, err := f.WriteTo(buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestExcelLabeledColumn(t *testing.T) {
	blob := mkXLSX(t, map[string][][]any{
		"Энергия": {
			{"Объект", "Расход, кВт·ч"},
			{"Цех 1", 1500},
			{"Цех 2", 2500.5},
		},
	})
	res := NewExcel().Parse(context.Background(), blob, internal.DefaultParseOptions())
	require.True(t, res.Success, res.Error)

	data := res.Data
	assert.Equal(t, methodExcelize, data.Metadata.Extra["method"])
	assert.Equal(t, []string{"Энергия"}, data.Metadata.Extra["sheets"])
	require.Len(t, data.ExtractedData.ElectricityData, 2)
	assert.InDelta(t, 1500, data.ExtractedData.ElectricityData[0].Value, 1e-9)
	assert.InDelta(t, 2500.5, data.ExtractedData.ElectricityData[1].Value, 1e-9)
	assert.Equal(t, "binary", data.Metadata.Encoding)
}

func TestExcelMultipleSheetsRaiseConfidence(t *testing.T) {
	one := mkXLSX(t, map[string][][]any{
		"A": {{"Ресурс", "Объем"}, {"Газ", "350 м3"}},
	})
	two := mkXLSX(t, map[string][][]any{
		"A": {{"Ресурс", "Объем"}, {"Газ", "350 м3"}},
		"B": {{"Ресурс", "Объем"}, {"Газ", "350 м3"}},
	})
	r1 := NewExcel().Parse(context.Background(), one, internal.DefaultParseOptions())
	r2 := NewExcel().Parse(context.Background(), two, internal.DefaultParseOptions())
	require.True(t, r1.Success, r1.Error)
	require.True(t, r2.Success, r2.Error)
	assert.Greater(t, r2.Data.Confidence, r1.Data.Confidence)
	assert.Len(t, r2.Data.ExtractedData.GasData, 2)
}

func TestExcelGarbageFailsBothTiers(t *testing.T) {
	res := NewExcel().Parse(context.Background(), []byte("not a workbook"), internal.DefaultParseOptions())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, methodExcelize)
	assert.Contains(t, res.Error, methodXLS)
}
