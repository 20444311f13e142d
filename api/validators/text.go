package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanText trims free text, drops control characters other than newlines and
// tabs, and cuts it to maxRunes. Receipts print Turkish names, so the cut
// never splits a multi-byte rune.
func CleanText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	return strings.TrimSpace(string([]rune(cleaned)[:maxRunes]))
}
