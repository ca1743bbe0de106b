// Package utils provides shared helpers for text, vectors and logging.
package utils

import "unicode/utf8"

// Truncate returns s cut to at most maxLen bytes, on a rune boundary, with "..."
// appended when anything was dropped. A maxLen of 0 or less returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
