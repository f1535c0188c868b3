package matching

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode"

	"esgdocs/internal"
	"esgdocs/internal/util"
	"esgdocs/internal/vocab"
)

var ErrEnhancementUnavailable = errors.New("entity enhancement unavailable")

type Recommendation string

const (
	RecommendHigh   Recommendation = "high_confidence"
	RecommendMedium Recommendation = "medium_confidence"
	RecommendLow    Recommendation = "low_confidence"
	RecommendReject Recommendation = "reject"
)

const (
	contextSentences = 2
	maxUnitDistance  = 10
)

type UnitCoMention struct {
	Unit       string                `json:"unit"`
	Raw        string                `json:"raw"`
	Category   internal.DataCategory `json:"category"`
	Distance   int                   `json:"distance"`
	Confidence float64               `json:"confidence"`
	FromModel  bool                  `json:"fromModel,omitempty"`
}

type ContextBonuses struct {
	UnitProximity        float64 `json:"unitProximity"`
	DocumentContext      float64 `json:"documentContext"`
	SentenceContext      float64 `json:"sentenceContext"`
	TableContext         float64 `json:"tableContext"`
	ModelDocumentContext float64 `json:"modelDocumentContext,omitempty"`
}

func (b ContextBonuses) Total() float64 {
	return b.UnitProximity + b.DocumentContext + b.SentenceContext + b.TableContext + b.ModelDocumentContext
}

type ContextPenalties struct {
	ConflictingUnits   float64 `json:"conflictingUnits"`
	LowFuzzyConfidence float64 `json:"lowFuzzyConfidence"`
}

func (p ContextPenalties) Total() float64 { return p.ConflictingUnits + p.LowFuzzyConfidence }

type ContextualMatch struct {
	Query          string            `json:"query"`
	Fuzzy          *FuzzyMatchResult `json:"fuzzy,omitempty"`
	BaseScore      float64           `json:"baseScore"`
	ContextWindow  []string          `json:"contextWindow"`
	TargetSentence string            `json:"targetSentence"`
	UnitCoMentions []UnitCoMention   `json:"unitCoMentions"`
	DocumentTerms  []string          `json:"documentTerms"`
	Bonuses        ContextBonuses    `json:"contextBonuses"`
	Penalties      ContextPenalties  `json:"penalties"`
	FinalScore     float64           `json:"finalScore"`
	Recommendation Recommendation    `json:"recommendation"`
	Enhanced       bool              `json:"enhanced"`

	ModelDocumentType    string   `json:"modelDocumentType,omitempty"`
	ModelRecommendations []string `json:"modelRecommendations,omitempty"`
}

type EnhanceRequest struct {
	Query   string
	Context string
}

type EnhancedEntity struct {
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
	NormalizedValue string   `json:"normalized_value"`
	Units           []string `json:"units"`
}

type ContextAnalysis struct {
	DocumentType     string   `json:"document_type"`
	Confidence       float64  `json:"confidence"`
	RelevantSections []string `json:"relevant_sections"`
}

type Enhancement struct {
	Entities        []EnhancedEntity `json:"entities"`
	ContextAnalysis ContextAnalysis  `json:"context_analysis"`
	Recommendations []string         `json:"recommendations"`
}

// EntityEnhancer asks an external model to identify entities in a context
// window. Implementations must honour ctx cancellation.
type EntityEnhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*Enhancement, error)
}

type NoopEnhancer struct{}

func (NoopEnhancer) Enhance(context.Context, EnhanceRequest) (*Enhancement, error) {
	return nil, ErrEnhancementUnavailable
}

type Config struct {
	Matcher        MatcherConfig
	SamplingRate   float64
	EnhanceTimeout time.Duration
	// Rand returns a value in [0,1); it drives validation sampling.
	Rand func() float64
}

func DefaultConfig() Config {
	return Config{Matcher: DefaultMatcherConfig(), SamplingRate: 0.3, EnhanceTimeout: 20 * time.Second}
}

type Analyzer struct {
	cfg        Config
	matcher    *Matcher
	enhancer   EntityEnhancer
	logger     *slog.Logger
	vocabulary []string
}

func NewAnalyzer(cfg Config, enhancer EntityEnhancer, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if enhancer == nil {
		enhancer = NoopEnhancer{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.EnhanceTimeout <= 0 {
		cfg.EnhanceTimeout = DefaultConfig().EnhanceTimeout
	}
	return &Analyzer{
		cfg:        cfg,
		matcher:    NewMatcher(cfg.Matcher),
		enhancer:   enhancer,
		logger:     logger,
		vocabulary: vocab.Vocabulary(),
	}
}

func (a *Analyzer) Matcher() *Matcher { return a.matcher }

// AnalyzeInContext scores query against the canonical vocabulary and the
// sentences around its first occurrence in fullText. The external model is
// consulted only for hard cases and a sample of easy ones; its failure leaves
// the rule-based score untouched.
func (a *Analyzer) AnalyzeInContext(ctx context.Context, query, fullText string, useExternal bool) ContextualMatch {
	res := ContextualMatch{Query: query, UnitCoMentions: []UnitCoMention{}, DocumentTerms: []string{}}
	if fuzzy, ok := a.matcher.FindBestMatch(query, a.vocabulary); ok {
		res.Fuzzy = fuzzy
		res.BaseScore = fuzzy.Confidence
	}

	res.ContextWindow, res.TargetSentence = contextWindow(fullText, query)
	joined := strings.Join(res.ContextWindow, " ")
	res.UnitCoMentions = unitCoMentions(joined, query)
	res.DocumentTerms = vocab.FindDocumentTerms(joined)
	a.score(&res)

	if useExternal && a.shouldEscalate(res.FinalScore) {
		a.enhance(ctx, &res, joined)
	}
	return res
}

// AnalyzeBatch analyses queries one after another against the same text.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, queries []string, fullText string, useExternal bool) []ContextualMatch {
	out := make([]ContextualMatch, 0, len(queries))
	for _, q := range queries {
		if ctx.Err() != nil {
			useExternal = false
		}
		out = append(out, a.AnalyzeInContext(ctx, q, fullText, useExternal))
	}
	return out
}

func (a *Analyzer) shouldEscalate(score float64) bool {
	if score < 70 {
		return true
	}
	return score >= 85 && a.cfg.Rand() < a.cfg.SamplingRate
}

func (a *Analyzer) score(res *ContextualMatch) {
	var b ContextBonuses
	if len(res.UnitCoMentions) > 0 {
		b.UnitProximity = math.Min(20, res.UnitCoMentions[0].Confidence/5)
	}
	if len(res.DocumentTerms) > 0 {
		b.DocumentContext = 15
	}
	b.SentenceContext = math.Min(10, 3*float64(util.CountNumbers(res.TargetSentence)))
	if isTabular(res.TargetSentence) {
		b.TableContext = 10
	}
	b.ModelDocumentContext = res.Bonuses.ModelDocumentContext

	var p ContextPenalties
	categories := map[internal.DataCategory]struct{}{}
	for _, u := range res.UnitCoMentions {
		categories[u.Category] = struct{}{}
	}
	if len(categories) > 2 {
		p.ConflictingUnits = 10
	}
	if res.BaseScore < 70 {
		p.LowFuzzyConfidence = 15
	}

	res.Bonuses, res.Penalties = b, p
	res.FinalScore = math.Max(0, math.Min(100, res.BaseScore+b.Total()-p.Total()))
	res.Recommendation = recommend(res.FinalScore)
}

func (a *Analyzer) enhance(ctx context.Context, res *ContextualMatch, window string) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.EnhanceTimeout)
	defer cancel()

	out, err := a.enhancer.Enhance(ctx, EnhanceRequest{Query: res.Query, Context: window})
	if err != nil {
		if errors.Is(err, ErrEnhancementUnavailable) {
			a.logger.Debug("matching.enhance.skipped", "query", res.Query)
		} else {
			a.logger.Warn("matching.enhance.failed", "query", res.Query, "err", err)
		}
		return
	}
	if out == nil {
		return
	}

	if e, ok := bestEntity(out.Entities); ok {
		if e.Confidence > 80 && strings.TrimSpace(e.NormalizedValue) != "" {
			nv := Normalize(e.NormalizedValue)
			res.Fuzzy = &FuzzyMatchResult{
				Match: e.NormalizedValue, Score: 1, Confidence: e.Confidence, Method: MethodExact,
				NormalizedQuery: Normalize(res.Query), NormalizedMatch: nv,
			}
			res.BaseScore = e.Confidence
		}
		for _, u := range e.Units {
			if hasUnit(res.UnitCoMentions, u) {
				continue
			}
			m := UnitCoMention{Unit: u, Raw: u, Confidence: e.Confidence, FromModel: true}
			if unit, ok := vocab.UnitByName(u); ok {
				m.Unit, m.Category = unit.Canonical, unit.Category
			}
			res.UnitCoMentions = append(res.UnitCoMentions, m)
		}
		sortCoMentions(res.UnitCoMentions)
	}
	if out.ContextAnalysis.Confidence > 75 {
		res.Bonuses.ModelDocumentContext = 10
	}
	res.ModelDocumentType = out.ContextAnalysis.DocumentType
	res.ModelRecommendations = out.Recommendations
	res.Enhanced = true
	a.score(res)
	a.logger.Debug("matching.enhance.applied", "query", res.Query, "final_score", res.FinalScore)
}

func bestEntity(entities []EnhancedEntity) (EnhancedEntity, bool) {
	if len(entities) == 0 {
		return EnhancedEntity{}, false
	}
	best := entities[0]
	for _, e := range entities[1:] {
		if e.Confidence > best.Confidence {
			best = e
		}
	}
	return best, true
}

func hasUnit(mentions []UnitCoMention, u string) bool {
	nu := Normalize(u)
	for _, m := range mentions {
		if Normalize(m.Unit) == nu || Normalize(m.Raw) == nu {
			return true
		}
	}
	return false
}

func recommend(score float64) Recommendation {
	switch {
	case score >= 80:
		return RecommendHigh
	case score >= 60:
		return RecommendMedium
	case score >= 40:
		return RecommendLow
	default:
		return RecommendReject
	}
}

// contextWindow returns up to two sentences either side of the first
// sentence containing query, case-insensitively.
func contextWindow(text, query string) ([]string, string) {
	sentences := util.SplitSentences(text)
	lq := strings.ToLower(strings.TrimSpace(query))
	if lq == "" {
		return []string{}, ""
	}
	for i, s := range sentences {
		if !strings.Contains(strings.ToLower(s), lq) {
			continue
		}
		from := max(0, i-contextSentences)
		to := min(len(sentences), i+contextSentences+1)
		return append([]string(nil), sentences[from:to]...), s
	}
	return []string{}, ""
}

// unitCoMentions finds every known unit spelling within maxUnitDistance words
// of the query in window.
func unitCoMentions(window, query string) []UnitCoMention {
	words := util.Words(window)
	qWords := util.Words(query)
	if len(words) == 0 || len(qWords) == 0 {
		return []UnitCoMention{}
	}
	qIdx := -1
	for i, w := range words {
		if strings.Contains(w, qWords[0]) {
			qIdx = i
			break
		}
	}
	if qIdx < 0 {
		return []UnitCoMention{}
	}

	stripped := make([]string, len(words))
	for i, w := range words {
		stripped[i] = stripNumberPrefix(w)
	}

	byUnit := map[string]UnitCoMention{}
	for _, us := range vocab.UnitStrings() {
		parts := strings.Fields(us)
		best := -1
		for i := range stripped {
			if i == qIdx || !wordsMatch(stripped, i, parts) {
				continue
			}
			if d := abs(i - qIdx); best < 0 || d < best {
				best = d
			}
		}
		if best < 0 || best > maxUnitDistance {
			continue
		}
		unit, _ := vocab.UnitByName(us)
		if prev, ok := byUnit[unit.Canonical]; ok && prev.Distance <= best {
			continue
		}
		byUnit[unit.Canonical] = UnitCoMention{
			Unit:       unit.Canonical,
			Raw:        us,
			Category:   unit.Category,
			Distance:   best,
			Confidence: math.Max(0, 100-float64(best)*10),
		}
	}

	out := make([]UnitCoMention, 0, len(byUnit))
	for _, m := range byUnit {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	sortCoMentions(out)
	return out
}

func sortCoMentions(m []UnitCoMention) {
	sort.SliceStable(m, func(i, j int) bool { return m[i].Confidence > m[j].Confidence })
}

func wordsMatch(words []string, at int, parts []string) bool {
	if at+len(parts) > len(words) {
		return false
	}
	for k, p := range parts {
		w := strings.TrimSuffix(words[at+k], ".")
		if w != strings.TrimSuffix(p, ".") {
			return false
		}
	}
	return true
}

// stripNumberPrefix turns "500квт·ч" into "квт·ч".
func stripNumberPrefix(w string) string {
	return strings.TrimLeftFunc(w, func(r rune) bool {
		return unicode.IsDigit(r) || r == '.' || r == ','
	})
}

func isTabular(s string) bool {
	return strings.ContainsAny(s, "\t|") || strings.Contains(s, "  ")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
