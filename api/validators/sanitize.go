package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxDocumentNumberLen = 64

// SanitizeString trims input, drops control characters and cuts the result to
// at most maxLen bytes without splitting a UTF-8 sequence. maxLen <= 0 keeps
// the full length.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if maxLen <= 0 || len(cleaned) <= maxLen {
		return cleaned
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return cleaned[:cut]
}

// DocumentNumber normalises an RE/LS/EB/KOM number taken from a path or a
// bank statement line: whitespace is removed and the prefix is upper-cased.
func DocumentNumber(input string) string {
	number := strings.ToUpper(SanitizeString(input, maxDocumentNumberLen))
	return strings.Join(strings.Fields(number), "")
}
