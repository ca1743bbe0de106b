package search

import (
	"regexp"
	"strings"
	"unicode"
)

var abbreviations = map[string]string{
	"vs":   "versus",
	"etc":  "etcetera",
	"e.g":  "for example",
	"i.e":  "that is",
	"fig":  "figure",
	"app":  "application",
	"info": "information",
	"tech": "technology",
	"doc":  "document",
	"docs": "documents",
}

// Matches an abbreviation as a whole word, with an optional trailing period.
var abbreviationPattern = regexp.MustCompile(`\b(e\.g|i\.e|vs|etc|fig|app|info|tech|docs|doc)\b\.?`)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "were": true, "what": true, "which": true, "with": true,
}

// OptimizeQuery rewrites a user query for embedding: lower-cased, abbreviations
// expanded, and stop words removed when the query has more than two words and at
// least one word survives.
func OptimizeQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = abbreviationPattern.ReplaceAllStringFunc(q, func(m string) string {
		return abbreviations[strings.TrimSuffix(m, ".")]
	})
	words := strings.Fields(q)
	if len(words) <= 2 {
		return strings.Join(words, " ")
	}
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if !stopWords[strings.TrimFunc(w, isPunct)] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return strings.Join(words, " ")
	}
	return strings.Join(kept, " ")
}

// ExtractKeywords returns the distinct lower-cased words of at least three letters,
// in query order, with punctuation removed.
func ExtractKeywords(query string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, query)
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(cleaned) {
		if len([]rune(w)) < minKeywordLength || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
