package extract

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// MaxFallbackChars caps the raw content sent to the LLM fallback.
const MaxFallbackChars = 15000

const truncatedMarker = "\n[truncated]"

// Fallback asks an LLM to recover text the direct extractors could not.
type Fallback interface {
	ExtractionFallback(ctx context.Context, prompt string) (string, error)
}

// FallbackFunc adapts a function to Fallback.
type FallbackFunc func(ctx context.Context, prompt string) (string, error)

// ExtractionFallback calls f.
func (f FallbackFunc) ExtractionFallback(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// truncateForFallback limits s to MaxFallbackChars characters and marks the cut.
func truncateForFallback(s string) string {
	if utf8.RuneCountInString(s) <= MaxFallbackChars {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxFallbackChars {
			return s[:i] + truncatedMarker
		}
		n++
	}
	return s
}

// BuildFallbackPrompt builds the extraction prompt for raw document bytes.
func BuildFallbackPrompt(storageKey string, content []byte) string {
	raw := truncateForFallback(rawToString(content))
	return fmt.Sprintf(`You are a document text extraction assistant.
The content below was read from the file %q. It may be raw, partially binary, or encoded
document data. Extract ALL human-readable text it contains, preserving paragraph breaks and
reading order. Do not summarize, translate, explain, or add commentary. If nothing readable
is present, answer with an empty response.

--- BEGIN CONTENT ---
%s
--- END CONTENT ---`, storageKey, raw)
}
