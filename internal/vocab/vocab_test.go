package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"esgdocs/internal"
)

func TestClassifyDocument(t *testing.T) {
	assert.Equal(t, "invoice", ClassifyDocument("СЧЕТ-ФАКТУРА № 12 от 01.03.2024. Счет на оплату"))
	assert.Equal(t, "waybill", ClassifyDocument("Товарная накладная № 7"))
	assert.Equal(t, "", ClassifyDocument("просто текст без ключевых слов"))
}

func TestCategoryOf(t *testing.T) {
	c, ok := CategoryOf("квтч")
	assert.True(t, ok)
	assert.Equal(t, internal.CategoryElectricity, c)

	c, ok = CategoryOf("Гкал")
	assert.True(t, ok)
	assert.Equal(t, internal.CategoryHeat, c)

	_, ok = CategoryOf("банан")
	assert.False(t, ok)
}

func TestOptionalCategories(t *testing.T) {
	assert.True(t, HasFGases("Заправка хладагентом R-134a, 3 кг"))
	assert.True(t, HasIndustrialProcesses("Производство клинкера"))
	assert.False(t, HasFGases("Электроэнергия 500 кВт·ч"))
}

func TestUnitStringsLongestFirst(t *testing.T) {
	units := UnitStrings()
	assert.Greater(t, len([]rune(units[0])), 1)
	assert.Equal(t, "т", units[len(units)-1])
}
