package util

import (
	"regexp"
	"strconv"
	"strings"
)

// NumberExpr matches numbers written with space or dot thousand groups and a
// comma or dot decimal part: "1 234,5", "1.000", "12.75".
const NumberExpr = `\d{1,3}(?:[ \x{00A0}.]\d{3})+(?:,\d+)?|\d+(?:[.,]\d+)?`

var (
	numberPattern = regexp.MustCompile(NumberExpr)
	dotThousands  = regexp.MustCompile(`^[1-9]\d{0,2}(?:\.\d{3})+$`)
)

// ParseNumber converts a locale-formatted numeric token to float64.
func ParseNumber(token string) (float64, bool) {
	token = strings.TrimSpace(strings.ReplaceAll(token, "\u00A0", " "))
	if token == "" {
		return 0, false
	}
	norm := normalizeNumericToken(token)
	v, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CountNumbers counts locale-formatted numbers, so "3,5" and "1 000" are
// one number each.
func CountNumbers(text string) int {
	return len(numberPattern.FindAllStringIndex(strings.ReplaceAll(text, "\u00A0", " "), -1))
}

// normalizeNumericToken rewrites a token for strconv. Space and dot groups
// of exactly three digits are thousands; a comma is always the decimal
// separator, so "0,125" is 0.125 and "2,500" is 2.5.
func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if strings.Contains(compact, ",") {
		compact = strings.ReplaceAll(compact, ".", "")
		return strings.ReplaceAll(compact, ",", ".")
	}
	if dotThousands.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	return compact
}
