// Package vocab holds the canonical unit, substance and document-type
// vocabulary shared by parsers and the matching services.
package vocab

import (
	"sort"
	"strings"

	"esgdocs/internal"
)

type Unit struct {
	Canonical string
	Category  internal.DataCategory
	Synonyms  []string
}

var Units = []Unit{
	{Canonical: "кВт·ч", Category: internal.CategoryElectricity, Synonyms: []string{"квт·ч", "квт*ч", "квт-ч", "квт.ч", "квтч", "квт/ч", "kwh", "квт ч"}},
	{Canonical: "МВт·ч", Category: internal.CategoryElectricity, Synonyms: []string{"мвт·ч", "мвт*ч", "мвт-ч", "мвтч", "mwh"}},
	{Canonical: "л", Category: internal.CategoryFuel, Synonyms: []string{"литр", "литров", "литра", "л."}},
	{Canonical: "т", Category: internal.CategoryFuel, Synonyms: []string{"тонн", "тонна", "тонны", "тн"}},
	{Canonical: "м³", Category: internal.CategoryGas, Synonyms: []string{"м3", "куб.м", "куб. м", "кубометр", "нм3", "m3"}},
	{Canonical: "Гкал", Category: internal.CategoryHeat, Synonyms: []string{"гкал", "gcal"}},
	{Canonical: "км", Category: internal.CategoryTransport, Synonyms: []string{"километр", "километров", "km"}},
}

type Substance struct {
	Canonical string
	Category  internal.DataCategory
	Synonyms  []string
}

var Substances = []Substance{
	{Canonical: "электроэнергия", Category: internal.CategoryElectricity, Synonyms: []string{"электричество", "электроэнергии", "активная энергия", "electricity"}},
	{Canonical: "дизельное топливо", Category: internal.CategoryFuel, Synonyms: []string{"дизель", "дт", "солярка", "diesel"}},
	{Canonical: "бензин", Category: internal.CategoryFuel, Synonyms: []string{"аи-92", "аи-95", "аи-98", "petrol", "gasoline"}},
	{Canonical: "мазут", Category: internal.CategoryFuel, Synonyms: []string{"топочный мазут"}},
	{Canonical: "уголь", Category: internal.CategoryFuel, Synonyms: []string{"каменный уголь", "coal"}},
	{Canonical: "природный газ", Category: internal.CategoryGas, Synonyms: []string{"газ", "метан", "natural gas"}},
	{Canonical: "сжиженный газ", Category: internal.CategoryGas, Synonyms: []string{"суг", "пропан", "lpg"}},
	{Canonical: "тепловая энергия", Category: internal.CategoryHeat, Synonyms: []string{"теплоэнергия", "отопление", "горячая вода", "heat"}},
	{Canonical: "пробег", Category: internal.CategoryTransport, Synonyms: []string{"перевозка", "транспорт", "грузоперевозка", "mileage"}},
}

// DocumentTerms maps a document kind to keywords identifying it.
var DocumentTerms = map[string][]string{
	"invoice":     {"счет-фактура", "счёт-фактура", "счет", "счёт", "invoice"},
	"act":         {"акт", "акт сверки", "акт выполненных работ"},
	"certificate": {"справка", "сертификат", "certificate"},
	"waybill":     {"накладная", "путевой лист", "товарно-транспортная"},
	"contract":    {"договор", "contract"},
	"report":      {"отчет", "отчёт", "ведомость", "report"},
	"receipt":     {"квитанция", "чек", "receipt"},
}

var FGasKeywords = []string{"хладагент", "фреон", "r-134a", "r-410a", "r-404a", "r-22", "sf6", "элегаз", "гфу", "hfc"}

var IndustrialProcessKeywords = []string{"цемент", "клинкер", "известь", "сталь", "чугун", "аммиак", "алюминий", "стекло"}

// Vocabulary returns every canonical term and synonym, units first.
func Vocabulary() []string {
	seen := map[string]struct{}{}
	out := []string{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, u := range Units {
		add(u.Canonical)
		for _, syn := range u.Synonyms {
			add(syn)
		}
	}
	for _, s := range Substances {
		add(s.Canonical)
		for _, syn := range s.Synonyms {
			add(syn)
		}
	}
	return out
}

// UnitStrings lists every unit spelling, longest first so that "мвт·ч" is
// located before "т".
func UnitStrings() []string {
	out := []string{}
	for _, u := range Units {
		out = append(out, strings.ToLower(u.Canonical))
		for _, syn := range u.Synonyms {
			out = append(out, strings.ToLower(syn))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len([]rune(out[i])) > len([]rune(out[j])) })
	return out
}

func UnitByName(name string) (Unit, bool) {
	l := strings.ToLower(strings.TrimSpace(name))
	for _, u := range Units {
		if strings.ToLower(u.Canonical) == l {
			return u, true
		}
		for _, syn := range u.Synonyms {
			if syn == l {
				return u, true
			}
		}
	}
	return Unit{}, false
}

func CategoryOf(term string) (internal.DataCategory, bool) {
	if u, ok := UnitByName(term); ok {
		return u.Category, true
	}
	l := strings.ToLower(strings.TrimSpace(term))
	for _, s := range Substances {
		if s.Canonical == l {
			return s.Category, true
		}
		for _, syn := range s.Synonyms {
			if syn == l {
				return s.Category, true
			}
		}
	}
	return "", false
}

// ClassifyDocument returns the document kind whose keywords occur most often
// in text, or "" when none occur.
func ClassifyDocument(text string) string {
	lower := strings.ToLower(text)
	best, bestHits := "", 0
	kinds := make([]string, 0, len(DocumentTerms))
	for k := range DocumentTerms {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		hits := 0
		for _, kw := range DocumentTerms[kind] {
			hits += countWord(lower, kw)
		}
		if hits > bestHits {
			best, bestHits = kind, hits
		}
	}
	return best
}

// DocumentKeywords lists all document-type keywords, longest first.
func DocumentKeywords() []string {
	out := []string{}
	for _, kws := range DocumentTerms {
		out = append(out, kws...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := len([]rune(out[i])), len([]rune(out[j]))
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}

// FindDocumentTerms returns the document-type keywords present in text.
func FindDocumentTerms(text string) []string {
	lower := strings.ToLower(text)
	out := []string{}
	for _, kw := range DocumentKeywords() {
		if countWord(lower, kw) > 0 {
			out = append(out, kw)
		}
	}
	return out
}

func HasFGases(text string) bool {
	return containsAnyWord(strings.ToLower(text), FGasKeywords)
}

func HasIndustrialProcesses(text string) bool {
	return containsAnyWord(strings.ToLower(text), IndustrialProcessKeywords)
}

func containsAnyWord(lower string, words []string) bool {
	for _, w := range words {
		if countWord(lower, w) > 0 {
			return true
		}
	}
	return false
}

// countWord counts occurrences of w in s that start at a word boundary.
func countWord(s, w string) int {
	n := 0
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], w)
		if j < 0 {
			break
		}
		pos := i + j
		if pos == 0 || !isLetter(lastRune(s[:pos])) {
			n++
		}
		i = pos + len(w)
	}
	return n
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'а' && r <= 'я') || r == 'ё' || (r >= 'A' && r <= 'Z') || (r >= 'А' && r <= 'Я')
}
