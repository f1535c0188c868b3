package pipeline

import (
	"context"

	"esgdocs/internal"
	"esgdocs/internal/matching"
)

// Refine validates every distinct raw unit of data against the whole document
// text and scales the confidence of the matching entries by the contextual
// score: a score of 100 keeps the confidence, 0 halves it.
func Refine(ctx context.Context, analyzer *matching.Analyzer, data *internal.ParsedDocumentData, useExternal bool) []matching.ContextualMatch {
	if analyzer == nil || data == nil {
		return nil
	}
	var raws []string
	seen := map[string]bool{}
	for _, e := range data.ExtractedData.Entries() {
		if e.RawUnit == "" || seen[e.RawUnit] {
			continue
		}
		seen[e.RawUnit] = true
		raws = append(raws, e.RawUnit)
	}
	if len(raws) == 0 {
		return nil
	}

	matches := analyzer.AnalyzeBatch(ctx, raws, data.Text, useExternal)
	for i, m := range matches {
		data.ExtractedData.Scale(raws[i], 0.5+m.FinalScore/200, string(m.Recommendation))
	}
	return matches
}
