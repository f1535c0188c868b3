package metrics

import (
	"math"

	"esgdocs/internal"
)

// Emission factors in tCO2 per canonical unit. Liquid fuel uses the diesel
// factor since entries do not carry the fuel grade.
var emissionFactors = map[internal.DataCategory]map[string]float64{
	internal.CategoryElectricity: {"кВт·ч": 0.000322, "МВт·ч": 0.322},
	internal.CategoryFuel:        {"л": 0.00268, "т": 3.15},
	internal.CategoryGas:         {"м³": 0.00193},
	internal.CategoryHeat:        {"Гкал": 0.26},
	internal.CategoryTransport:   {"км": 0.00017},
}

// EstimateEmissions sums value×factor over entries with a known factor and
// rounds to kilograms.
func EstimateEmissions(entries []internal.DataEntry) float64 {
	var total float64
	for _, e := range entries {
		f, ok := FactorFor(e)
		if !ok {
			continue
		}
		total += e.Value * f
	}
	return math.Round(total*1000) / 1000
}

func FactorFor(e internal.DataEntry) (float64, bool) {
	units, ok := emissionFactors[e.Category]
	if !ok {
		return 0, false
	}
	f, ok := units[e.Unit]
	if !ok {
		return 0, false
	}
	return f, true
}
