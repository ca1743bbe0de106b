package search

import (
	"fmt"
	"math"
)

const minKeywordLength = 3

// Weights blends semantic and keyword relevance.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// DefaultWeights favors semantic similarity.
var DefaultWeights = Weights{Semantic: 0.7, Keyword: 0.3}

// Blend returns semantic*w.Semantic + keyword*w.Keyword.
func Blend(semantic, keyword float64, w Weights) float64 {
	return semantic*w.Semantic + keyword*w.Keyword
}

// Explain describes how a hybrid score was formed.
func Explain(semantic, keyword float64, w Weights) string {
	return fmt.Sprintf("semantic %.3f x %.2f + keyword %.3f x %.2f = %.3f",
		semantic, w.Semantic, keyword, w.Keyword, Blend(semantic, keyword, w))
}

// KeywordScore counts whole-word, case-insensitive occurrences of every keyword of
// length >= 3 in text. The count is damped by sqrt(min(len,1000)/100) so long texts
// do not win on volume, and the result is clamped to [0,1].
func KeywordScore(text string, keywords []string) float64 {
	if text == "" {
		return 0
	}
	matches := 0
	for _, kw := range keywords {
		if len([]rune(kw)) < minKeywordLength {
			continue
		}
		matches += len(keywordPattern(kw).FindAllStringIndex(text, -1))
	}
	if matches == 0 {
		return 0
	}
	length := math.Min(float64(len(text)), 1000)
	norm := math.Max(1, math.Sqrt(length/100))
	return math.Min(1, float64(matches)/norm)
}
