// Package matching maps noisy tokens (typically OCR output) to canonical unit
// and substance vocabulary and scores them against their document context.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var confusables = map[rune]rune{
	// Latin look-alikes commonly produced by OCR on Cyrillic text
	'a': 'а', 'e': 'е', 'o': 'о', 'p': 'р', 'c': 'с', 'x': 'х', 'y': 'у',
	// Ukrainian letters
	'і': 'и', 'ї': 'и', 'є': 'е', 'ґ': 'г',
}

var unitSeparators = map[rune]bool{'·': true, '∙': true, '⋅': true, '-': true, '/': true, ' ': true, '.': true, '*': true}

// Normalize lowercases s, strips diacritics, drops unit separators and maps
// confusable Latin and Ukrainian letters to their Russian counterparts, so
// "кВт·ч", "кВт-ч" and "квт ч" compare equal.
//
// Latin letters are remapped only when the result contains Cyrillic, so pure
// Latin words such as "coal" keep their spelling and Normalize is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unitSeparators[r] || unicode.IsSpace(r) {
			continue
		}
		if m, ok := confusables[r]; ok && r > unicode.MaxASCII {
			r = m
		}
		out = append(out, r)
	}
	if hasCyrillic(string(out)) {
		for i, r := range out {
			if m, ok := confusables[r]; ok {
				out[i] = m
			}
		}
	}
	return string(out)
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
