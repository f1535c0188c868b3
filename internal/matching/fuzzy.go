package matching

import (
	"math"

	"github.com/agext/levenshtein"
	"github.com/sahilm/fuzzy"

	"esgdocs/internal/util"
)

type Method string

const (
	MethodExact       Method = "exact"
	MethodDice        Method = "dice"
	MethodSubsequence Method = "subsequence"
	MethodLevenshtein Method = "levenshtein"
)

type FuzzyMatchResult struct {
	Match           string  `json:"match"`
	Score           float64 `json:"score"`
	Confidence      float64 `json:"confidence"`
	Method          Method  `json:"method"`
	NormalizedQuery string  `json:"normalizedQuery"`
	NormalizedMatch string  `json:"normalizedMatch"`
}

type MatcherConfig struct {
	MinQueryLength    int
	DiceAccept        float64
	SubsequenceAccept float64
	MaxEdits          int
}

func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{MinQueryLength: 3, DiceAccept: 70, SubsequenceAccept: 60, MaxEdits: 2}
}

type Matcher struct {
	cfg MatcherConfig
}

func NewMatcher(cfg MatcherConfig) *Matcher {
	def := DefaultMatcherConfig()
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = def.MinQueryLength
	}
	if cfg.DiceAccept <= 0 {
		cfg.DiceAccept = def.DiceAccept
	}
	if cfg.SubsequenceAccept <= 0 {
		cfg.SubsequenceAccept = def.SubsequenceAccept
	}
	if cfg.MaxEdits <= 0 {
		cfg.MaxEdits = def.MaxEdits
	}
	return &Matcher{cfg: cfg}
}

// FindBestMatch runs the cascade exact, dice, subsequence, levenshtein and
// returns the first stage result that clears its floor. Queries shorter than
// MinQueryLength go straight to edit distance.
func (m *Matcher) FindBestMatch(query string, candidates []string) (*FuzzyMatchResult, bool) {
	nq := Normalize(query)
	if nq == "" || len(candidates) == 0 {
		return nil, false
	}
	normalized := make([]string, len(candidates))
	for i, c := range candidates {
		normalized[i] = Normalize(c)
		if normalized[i] == nq {
			return &FuzzyMatchResult{
				Match: c, Score: 1, Confidence: 100, Method: MethodExact,
				NormalizedQuery: nq, NormalizedMatch: normalized[i],
			}, true
		}
	}

	if runeLen(nq) >= m.cfg.MinQueryLength {
		if r := m.dice(nq, candidates, normalized); r != nil && r.Confidence > m.cfg.DiceAccept {
			return r, true
		}
		if r := m.subsequence(nq, candidates, normalized); r != nil && r.Confidence > m.cfg.SubsequenceAccept {
			return r, true
		}
	}
	if r := m.editDistance(nq, candidates, normalized); r != nil {
		return r, true
	}
	return nil, false
}

func (m *Matcher) dice(nq string, candidates, normalized []string) *FuzzyMatchResult {
	best, bestScore := -1, 0.0
	for i, c := range normalized {
		if s := util.DiceCoefficient(nq, c); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return nil
	}
	return &FuzzyMatchResult{
		Match: candidates[best], Score: bestScore, Confidence: round1(bestScore * 100), Method: MethodDice,
		NormalizedQuery: nq, NormalizedMatch: normalized[best],
	}
}

// subsequence ranks candidates containing the query as an ordered
// subsequence. Confidence blends coverage of the candidate with the longest
// contiguous run shared with the query.
func (m *Matcher) subsequence(nq string, candidates, normalized []string) *FuzzyMatchResult {
	matches := fuzzy.Find(nq, normalized)
	var best *FuzzyMatchResult
	for _, hit := range matches {
		c := normalized[hit.Index]
		coverage := float64(runeLen(nq)) / float64(max(1, runeLen(c)))
		run := float64(longestCommonRun(nq, c)) / float64(runeLen(nq))
		conf := round1(100 * (0.6*math.Min(1, coverage) + 0.4*run))
		if best == nil || conf > best.Confidence {
			best = &FuzzyMatchResult{
				Match: candidates[hit.Index], Score: float64(hit.Score), Confidence: conf, Method: MethodSubsequence,
				NormalizedQuery: nq, NormalizedMatch: c,
			}
		}
	}
	return best
}

func (m *Matcher) editDistance(nq string, candidates, normalized []string) *FuzzyMatchResult {
	tolerance := m.cfg.MaxEdits
	if runeLen(nq) <= 4 {
		tolerance = min(tolerance, 1)
	}
	best, bestDist := -1, math.MaxInt
	for i, c := range normalized {
		if d := levenshtein.Distance(nq, c, nil); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > tolerance {
		return nil
	}
	longest := max(runeLen(nq), runeLen(normalized[best]))
	// a full rewrite of the query is not a match
	if bestDist >= longest {
		return nil
	}
	return &FuzzyMatchResult{
		Match: candidates[best], Score: float64(bestDist),
		Confidence:      round1(100 * (1 - float64(bestDist)/float64(max(1, longest)))),
		Method:          MethodLevenshtein,
		NormalizedQuery: nq, NormalizedMatch: normalized[best],
	}
}

func longestCommonRun(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	best := 0
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
				best = max(best, cur[j])
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return best
}

func runeLen(s string) int { return len([]rune(s)) }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
