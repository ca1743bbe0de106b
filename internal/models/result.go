package models

import (
	"fmt"
	"math"
	"strconv"
)

// VectorStoreDocument is the persisted unit in a vector store.
type VectorStoreDocument struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Vector   []float32              `json:"-"`
}

// VectorQueryResult is a single nearest-neighbor hit. Higher Score is more relevant.
type VectorQueryResult struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score"`
}

// DocumentID returns the owning document ID recorded in metadata.
func (r *VectorQueryResult) DocumentID() (string, bool) {
	v, ok := r.Metadata[MetaDocumentID]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// ChunkIndex returns the chunk index recorded in metadata. Stores round-trip numbers
// through JSON or protobuf, so every numeric representation is accepted.
func (r *VectorQueryResult) ChunkIndex() (int, bool) {
	v, ok := r.Metadata[MetaChunkIndex]
	if !ok {
		return 0, false
	}
	return AsInt(v)
}

// EnhancedSearchResult is a VectorQueryResult augmented for display and prompting.
// Score holds the blended hybrid score.
type EnhancedSearchResult struct {
	VectorQueryResult
	SemanticScore        float64 `json:"semantic_score"`
	KeywordScore         float64 `json:"keyword_score"`
	PrecedingContext     string  `json:"preceding_context,omitempty"`
	FollowingContext     string  `json:"following_context,omitempty"`
	HighlightedContent   string  `json:"highlighted_content,omitempty"`
	RelevanceExplanation string  `json:"relevance_explanation,omitempty"`
}

// AsInt converts a metadata value to int.
func AsInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), float32(math.Trunc(float64(n))) == n
	case float64:
		return int(n), math.Trunc(n) == n
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	case fmt.Stringer:
		i, err := strconv.Atoi(n.String())
		return i, err == nil
	default:
		return 0, false
	}
}
