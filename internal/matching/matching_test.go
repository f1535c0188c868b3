package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/internal"
	"esgdocs/internal/vocab"
)

func TestNormalize(t *testing.T) {
	want := Normalize("кВт·ч")
	assert.Equal(t, "квтч", want)
	for _, v := range []string{"кВт-ч", "квт ч", "КВТ/Ч", "кВт.ч", " кВт*ч "} {
		assert.Equal(t, want, Normalize(v), v)
	}
	assert.Equal(t, "елка", Normalize("Ёлка"))
	assert.Equal(t, "дизель", Normalize("дизeль"), "latin e inside a cyrillic word")
	assert.Equal(t, "газ", Normalize("ґaз"))
	assert.Equal(t, "coal", Normalize("coal"))
	assert.Equal(t, "", Normalize("   "))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := append(vocab.Vocabulary(), "т co", "кг a", "м3 x", "coal", "дизeль", "ґaз", "Ёлка", "кВт·ч")
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
	assert.Equal(t, "тсо", Normalize("т co"))
	assert.Equal(t, "м3х", Normalize("м3 x"))
}

func TestFindBestMatchCascade(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())

	r, ok := m.FindBestMatch("КВТ·Ч", vocab.Vocabulary())
	require.True(t, ok)
	assert.Equal(t, MethodExact, r.Method)
	assert.Equal(t, "кВт·ч", r.Match)
	assert.Equal(t, 100.0, r.Confidence)

	r, ok = m.FindBestMatch("электроэнергя", []string{"электроэнергия", "газ"})
	require.True(t, ok)
	assert.Equal(t, MethodDice, r.Method)
	assert.Greater(t, r.Confidence, 70.0)

	r, ok = m.FindBestMatch("дизтопливо", []string{"дизельное топливо", "газ"})
	require.True(t, ok)
	assert.Equal(t, MethodSubsequence, r.Method)
	assert.Equal(t, "дизельное топливо", r.Match)
	assert.Greater(t, r.Confidence, 60.0)

	r, ok = m.FindBestMatch("гас", []string{"газ", "мазут"})
	require.True(t, ok)
	assert.Equal(t, MethodLevenshtein, r.Method)
	assert.Equal(t, "газ", r.Match)
	assert.InDelta(t, 66.7, r.Confidence, 0.01)

	_, ok = m.FindBestMatch("xyzw", []string{"газ"})
	assert.False(t, ok)
}

func TestShortQueriesUseEditDistance(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())
	r, ok := m.FindBestMatch("гз", []string{"газ"})
	require.True(t, ok)
	assert.Equal(t, MethodLevenshtein, r.Method)

	// two edits exceed the tolerance for short queries
	_, ok = m.FindBestMatch("гзк", []string{"газ"})
	assert.False(t, ok)

	// replacing every rune leaves nothing in common
	_, ok = m.FindBestMatch("т", []string{"л"})
	assert.False(t, ok)
	_, ok = m.FindBestMatch("тн", []string{"кг"})
	assert.False(t, ok)
}

type fakeEnhancer struct {
	calls int
	out   *Enhancement
	err   error
}

func (f *fakeEnhancer) Enhance(context.Context, EnhanceRequest) (*Enhancement, error) {
	f.calls++
	return f.out, f.err
}

const actText = "Акт сверки за март. Потребление электроэнергии составило 1500 кВт·ч по счетчику. Оплата до 10 апреля."

func TestAnalyzeInContext(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil, nil)
	res := a.AnalyzeInContext(context.Background(), "электроэнергии", actText, false)

	require.NotNil(t, res.Fuzzy)
	assert.Equal(t, MethodExact, res.Fuzzy.Method)
	assert.Len(t, res.ContextWindow, 3)
	assert.Equal(t, "Потребление электроэнергии составило 1500 кВт·ч по счетчику", res.TargetSentence)

	require.Len(t, res.UnitCoMentions, 1)
	assert.Equal(t, "кВт·ч", res.UnitCoMentions[0].Unit)
	assert.Equal(t, internal.CategoryElectricity, res.UnitCoMentions[0].Category)
	assert.Equal(t, 3, res.UnitCoMentions[0].Distance)
	assert.Equal(t, 70.0, res.UnitCoMentions[0].Confidence)

	assert.Contains(t, res.DocumentTerms, "акт сверки")
	assert.Equal(t, 14.0, res.Bonuses.UnitProximity)
	assert.Equal(t, 15.0, res.Bonuses.DocumentContext)
	assert.Equal(t, 3.0, res.Bonuses.SentenceContext)
	assert.Zero(t, res.Bonuses.TableContext)
	assert.Zero(t, res.Penalties.Total())
	assert.Equal(t, 100.0, res.FinalScore)
	assert.Equal(t, RecommendHigh, res.Recommendation)
}

func TestAnalyzeInContextPenalties(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil, nil)
	text := "Итого | дизель 10 т | газ 5 м3 | свет 7 кВт·ч | пробег 3 км"
	res := a.AnalyzeInContext(context.Background(), "дизель", text, false)

	assert.Equal(t, 10.0, res.Bonuses.TableContext)
	assert.Equal(t, 10.0, res.Penalties.ConflictingUnits)
	assert.GreaterOrEqual(t, res.FinalScore, 0.0)
	assert.LessOrEqual(t, res.FinalScore, 100.0)
	assert.Equal(t, max(0, min(100, res.BaseScore+res.Bonuses.Total()-res.Penalties.Total())), res.FinalScore)
}

func TestEscalationImprovesHardCase(t *testing.T) {
	enh := &fakeEnhancer{out: &Enhancement{
		Entities:        []EnhancedEntity{{Name: "гзз", Category: "gas", Confidence: 85, NormalizedValue: "природный газ", Units: []string{"м³"}}},
		ContextAnalysis: ContextAnalysis{DocumentType: "invoice", Confidence: 80},
		Recommendations: []string{"сверить объем с показаниями счетчика"},
	}}
	a := NewAnalyzer(DefaultConfig(), enh, nil)
	res := a.AnalyzeInContext(context.Background(), "гзз", "нечитаемый текст", true)

	assert.Equal(t, 1, enh.calls)
	assert.True(t, res.Enhanced)
	require.NotNil(t, res.Fuzzy)
	assert.Equal(t, MethodExact, res.Fuzzy.Method)
	assert.Equal(t, "природный газ", res.Fuzzy.Match)
	require.NotEmpty(t, res.UnitCoMentions)
	assert.True(t, res.UnitCoMentions[0].FromModel)
	assert.Equal(t, internal.CategoryGas, res.UnitCoMentions[0].Category)
	assert.Equal(t, 10.0, res.Bonuses.ModelDocumentContext)
	assert.Equal(t, 100.0, res.FinalScore)
	assert.Equal(t, "invoice", res.ModelDocumentType)
	assert.Equal(t, []string{"сверить объем с показаниями счетчика"}, res.ModelRecommendations)
}

func TestModelDocumentBonusNeedsConfidentContextAnalysis(t *testing.T) {
	enh := &fakeEnhancer{out: &Enhancement{
		Entities:        []EnhancedEntity{{Name: "гзз", Category: "gas", Confidence: 85, NormalizedValue: "природный газ"}},
		ContextAnalysis: ContextAnalysis{DocumentType: "invoice", Confidence: 60},
	}}
	res := NewAnalyzer(DefaultConfig(), enh, nil).AnalyzeInContext(context.Background(), "гзз", "нечитаемый текст", true)

	assert.True(t, res.Enhanced)
	assert.Zero(t, res.Bonuses.ModelDocumentContext)
	assert.Equal(t, "invoice", res.ModelDocumentType)
}

func TestEscalationFailureKeepsRuleScore(t *testing.T) {
	plain := NewAnalyzer(DefaultConfig(), nil, nil).AnalyzeInContext(context.Background(), "гзз", "нечитаемый текст", false)

	enh := &fakeEnhancer{err: errors.New("model timeout")}
	res := NewAnalyzer(DefaultConfig(), enh, nil).AnalyzeInContext(context.Background(), "гзз", "нечитаемый текст", true)

	assert.Equal(t, 1, enh.calls)
	assert.False(t, res.Enhanced)
	assert.Equal(t, plain.FinalScore, res.FinalScore)
	assert.Less(t, res.FinalScore, 70.0)
	assert.Equal(t, 15.0, res.Penalties.LowFuzzyConfidence)
}

func TestValidationSampling(t *testing.T) {
	for _, tc := range []struct {
		draw  float64
		calls int
	}{{0.1, 1}, {0.9, 0}} {
		enh := &fakeEnhancer{err: ErrEnhancementUnavailable}
		cfg := DefaultConfig()
		cfg.Rand = func() float64 { return tc.draw }
		res := NewAnalyzer(cfg, enh, nil).AnalyzeInContext(context.Background(), "электроэнергии", actText, true)
		assert.Equal(t, 100.0, res.FinalScore)
		assert.Equal(t, tc.calls, enh.calls, "draw %v", tc.draw)
	}
}

func TestAnalyzeBatchIsSequentialAndOrdered(t *testing.T) {
	enh := &fakeEnhancer{err: ErrEnhancementUnavailable}
	a := NewAnalyzer(DefaultConfig(), enh, nil)
	out := a.AnalyzeBatch(context.Background(), []string{"электроэнергии", "гзз"}, actText, true)
	require.Len(t, out, 2)
	assert.Equal(t, "электроэнергии", out[0].Query)
	assert.Equal(t, "гзз", out[1].Query)
	assert.GreaterOrEqual(t, enh.calls, 1)
}
