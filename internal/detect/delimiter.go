package detect

import (
	"strings"

	"esgdocs/internal/util"
)

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// InferDelimiter scores each candidate delimiter over the first ten non-empty
// lines as mean/(1+variance) of its per-line count and returns the best one.
// A zero rune means no candidate appeared at all. The CSV parser relies on
// this same function so both agree on the delimiter.
func InferDelimiter(text string) (rune, float64) {
	lines := util.SplitLines(text)
	if len(lines) > 10 {
		lines = lines[:10]
	}
	if len(lines) == 0 {
		return 0, 0
	}

	var best rune
	bestScore := 0.0
	for _, d := range delimiterCandidates {
		counts := make([]float64, len(lines))
		sum := 0.0
		for i, line := range lines {
			counts[i] = float64(strings.Count(line, string(d)))
			sum += counts[i]
		}
		mean := sum / float64(len(lines))
		if mean == 0 {
			continue
		}
		variance := 0.0
		for _, c := range counts {
			variance += (c - mean) * (c - mean)
		}
		variance /= float64(len(lines))
		score := mean / (1 + variance)
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best, bestScore
}
