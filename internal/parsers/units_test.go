package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/internal"
)

func TestExtractUnits(t *testing.T) {
	cases := []struct {
		in       string
		category internal.DataCategory
		value    float64
		unit     string
	}{
		{"Расход 1234,5 кВт·ч", internal.CategoryElectricity, 1234.5, "кВт·ч"},
		{"итого 1 234,5 кВт*ч", internal.CategoryElectricity, 1234.5, "кВт·ч"},
		{"12 МВт·ч за квартал", internal.CategoryElectricity, 12, "МВт·ч"},
		{"Дизельное топливо 200 л", internal.CategoryFuel, 200, "л"},
		{"Газ 350,25 м3", internal.CategoryGas, 350.25, "м³"},
		{"Отопление 12,5 Гкал", internal.CategoryHeat, 12.5, "Гкал"},
		{"Пробег 1.500 км", internal.CategoryTransport, 1500, "км"},
		{"Дизель 0,125 т", internal.CategoryFuel, 0.125, "т"},
		{"Уголь 2,500 т", internal.CategoryFuel, 2.5, "т"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			hits := ExtractUnits(tc.in)
			require.Len(t, hits, 1)
			assert.Equal(t, tc.category, hits[0].Category)
			assert.InDelta(t, tc.value, hits[0].Value, 1e-9)
			assert.Equal(t, tc.unit, hits[0].Unit)
		})
	}
}

func TestExtractUnitsBoundaries(t *testing.T) {
	assert.Empty(t, ExtractUnits("артикул 15лампа"))
	assert.Empty(t, ExtractUnits("около 5 тыс. рублей"))

	hits := ExtractUnits("100 кВт·ч, затем 20 л и 5 км")
	require.Len(t, hits, 3)
	assert.Equal(t, internal.CategoryElectricity, hits[0].Category)
	assert.Equal(t, internal.CategoryFuel, hits[1].Category)
	assert.Equal(t, internal.CategoryTransport, hits[2].Category)
}

func TestUnitFromLabel(t *testing.T) {
	cat, unit, _, ok := UnitFromLabel("Расход, кВт·ч")
	require.True(t, ok)
	assert.Equal(t, internal.CategoryElectricity, cat)
	assert.Equal(t, "кВт·ч", unit)

	cat, unit, _, ok = UnitFromLabel("consumption_kwh")
	require.True(t, ok)
	assert.Equal(t, internal.CategoryElectricity, cat)
	assert.Equal(t, "кВт·ч", unit)

	_, _, _, ok = UnitFromLabel("Расход")
	assert.False(t, ok)
}

func TestDataQualityFor(t *testing.T) {
	assert.Equal(t, internal.QualityHigh, DataQualityFor(3, 4))
	assert.Equal(t, internal.QualityMedium, DataQualityFor(2, 4))
	assert.Equal(t, internal.QualityMedium, DataQualityFor(1, 4))
	assert.Equal(t, internal.QualityLow, DataQualityFor(1, 10))
	assert.Equal(t, internal.QualityLow, DataQualityFor(0, 0))
	// quality never decreases as unit density grows
	prev := internal.QualityLow
	rank := map[internal.DataQuality]int{internal.QualityLow: 0, internal.QualityMedium: 1, internal.QualityHigh: 2}
	for units := 0; units <= 20; units++ {
		q := DataQualityFor(units, 10)
		assert.GreaterOrEqual(t, rank[q], rank[prev])
		prev = q
	}
}

func TestExtractFromText(t *testing.T) {
	data := ExtractFromText("Электроэнергия: 1234,5 кВт·ч\n", string(internal.FormatTXT), "utf-8", 0.4, internal.DefaultParseOptions(), nil)
	require.Len(t, data.ExtractedData.ElectricityData, 1)
	e := data.ExtractedData.ElectricityData[0]
	assert.InDelta(t, 1234.5, e.Value, 1e-9)
	assert.Equal(t, "кВт·ч", e.Unit)
	assert.Equal(t, []string{"кВт·ч"}, data.Metadata.RussianUnitsFound)
	assert.Equal(t, 1, data.ExtractedData.TotalRows)
	assert.InDelta(t, 0.7, data.Confidence, 1e-9)
}

func TestMinConfidenceFiltersEntries(t *testing.T) {
	opts := internal.DefaultParseOptions()
	opts.MinConfidence = 0.95
	data := ExtractFromText("500 кВт·ч", "txt", "utf-8", 0.4, opts, nil)
	assert.Zero(t, data.ExtractedData.EntryCount())
}
