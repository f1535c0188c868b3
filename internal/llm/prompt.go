package llm

import (
	"strings"

	"esgdocs/internal/matching"
	"esgdocs/internal/util"
)

const systemPrompt = "You extract ESG consumption entities from Russian business documents (invoices, acts, certificates, waybills). " +
	"Return ONLY JSON that matches the JSON Schema provided. " +
	"For every entity give its category (fuel, electricity, gas, heat, transport or other), a confidence from 0 to 100, " +
	"the canonical Russian name in normalized_value and the units of measure mentioned with it. " +
	"Put the document type, your confidence in it and the relevant sections under context_analysis, " +
	"and any advice for the operator in recommendations. Never output null; omit unknown fields."

func userPrompt(req matching.EnhanceRequest) string {
	var b strings.Builder
	b.WriteString("Term: ")
	b.WriteString(req.Query)
	b.WriteString("\n\nContext (first ~2k chars):\n")
	b.WriteString(util.Truncate(req.Context, 2000))
	return b.String()
}
