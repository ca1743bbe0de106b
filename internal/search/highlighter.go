package search

// HighlightMatches wraps whole-word, case-insensitive matches of each keyword
// (length >= 3) in <mark> tags. Keywords are applied one after another, so a later
// keyword may match text inside tags added earlier.
func HighlightMatches(text string, keywords []string) string {
	for _, kw := range keywords {
		if len([]rune(kw)) < minKeywordLength {
			continue
		}
		text = keywordPattern(kw).ReplaceAllString(text, "<mark>$1</mark>")
	}
	return text
}
