package parsers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"esgdocs/internal"
	"esgdocs/internal/util"
)

var monthStems = []string{"январ", "феврал", "март", "апрел", "ма", "июн", "июл", "август", "сентябр", "октябр", "ноябр", "декабр"}

var (
	monthYearPattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(январ[ьяе]|феврал[ьяе]|март[ае]?|апрел[ьяе]|ма[йяе]|июн[ьяе]|июл[ьяе]|август[ае]?|сентябр[ьяе]|октябр[ьяе]|ноябр[ьяе]|декабр[ьяе])\s+(20\d{2})`)
	quarterPattern   = regexp.MustCompile(`(?i)(?:^|[^\p{L}\d])(IV|III|II|I|[1-4])\s*(?:-?й\s*)?(?:кв\.|квартал\p{L}*)\s*(20\d{2})`)
	datePattern      = regexp.MustCompile(`(?:^|\D)(0?[1-9]|[12]\d|3[01])\.(0?[1-9]|1[0-2])\.(20\d{2})(?:\D|$)`)
	yearPattern      = regexp.MustCompile(`(?i)(20\d{2})\s*(?:г\.|год\p{L}*|г(?:[^\p{L}]|$))`)

	supplierLabelPattern = regexp.MustCompile(`(?im)^\s*(?:поставщик|исполнитель|продавец|энергоснабжающая организация)\s*[:\-–]\s*(.+)$`)
	orgPattern           = regexp.MustCompile(`(ООО|ПАО|ОАО|ЗАО|АО|ИП)\s*[«"]([^»"\n]{2,80})[»"]`)
)

var romanQuarters = map[string]int{"I": 1, "II": 2, "III": 3, "IV": 4}

// DetectPeriod finds the reporting period mentioned in text. The result is
// "2024-03" for a month, "2024-Q1" for a quarter or "2024" for a year, and
// empty when nothing is recognised. A month name wins over a quarter, which
// wins over a calendar date, which wins over a bare year.
func DetectPeriod(text string) string {
	if m := monthYearPattern.FindStringSubmatch(text); m != nil {
		if month := monthIndex(m[1]); month > 0 {
			return fmt.Sprintf("%s-%02d", m[2], month)
		}
	}
	if m := quarterPattern.FindStringSubmatch(text); m != nil {
		q, ok := romanQuarters[strings.ToUpper(m[1])]
		if !ok {
			q, _ = strconv.Atoi(m[1])
		}
		return fmt.Sprintf("%s-Q%d", m[2], q)
	}
	if m := datePattern.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%s-%02d", m[3], month)
	}
	if m := yearPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// monthIndex relies on "март" being checked before the "ма" stem of May.
func monthIndex(word string) int {
	word = strings.ToLower(word)
	for i, stem := range monthStems {
		if strings.HasPrefix(word, stem) {
			return i + 1
		}
	}
	return 0
}

// DetectSupplier returns the counterparty named in text: an explicit
// "Поставщик:" line first, then the first quoted legal entity.
func DetectSupplier(text string) string {
	if m := supplierLabelPattern.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			return util.Truncate(util.NormalizeSpaces(s), 120)
		}
	}
	if m := orgPattern.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s «%s»", m[1], strings.TrimSpace(m[2]))
	}
	return ""
}

// annotate fills period and supplier on entries that lack them.
func annotate(data *internal.ExtractedData, text string) {
	period := DetectPeriod(text)
	supplier := DetectSupplier(text)
	var p, s *string
	if period != "" {
		p = util.StringPtr(period)
	}
	if supplier != "" {
		s = util.StringPtr(supplier)
	}
	data.Annotate(p, s)
}
