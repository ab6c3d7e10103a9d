package llm

import (
	"strings"
	"unicode/utf8"
)

// Preview flattens newlines and shortens s to at most maxLen bytes plus an
// ellipsis, never splitting a multi-byte rune.
func Preview(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
