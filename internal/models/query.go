package models

import "fmt"

// SearchRequest is the API and CLI input for a hybrid search or a question.
type SearchRequest struct {
	Query          string   `json:"query"`
	TopK           int      `json:"top_k,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
	KeywordWeight  *float64 `json:"keyword_weight,omitempty"`
	Rerank         *bool    `json:"rerank,omitempty"`
	EnhanceContext *bool    `json:"enhance_context,omitempty"`
	DocumentID     string   `json:"document_id,omitempty"` // restrict results to one document
	VectorStore    string   `json:"vector_store,omitempty"`
}

// Validate ensures the request has a query and clamps TopK to [1, maxTopK].
func (q *SearchRequest) Validate(defaultTopK, maxTopK int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	for _, w := range []*float64{q.SemanticWeight, q.KeywordWeight} {
		if w != nil && (*w < 0 || *w > 1) {
			return fmt.Errorf("weights must be within [0,1]")
		}
	}
	return nil
}

// IngestRequest asks the service to (re)index a document already in the byte store.
type IngestRequest struct {
	StorageKey  string             `json:"storage_key"`
	Chunker     string             `json:"chunker,omitempty"`
	VectorStore string             `json:"vector_store,omitempty"`
	Metadata    *DocumentMetadata  `json:"metadata,omitempty"`
	Sections    []*DocumentSection `json:"sections,omitempty"`
	// Force reindexes even when the extracted text is unchanged.
	Force bool `json:"force,omitempty"`
}

// Validate checks the request and its section tree.
func (r *IngestRequest) Validate() error {
	if r.StorageKey == "" {
		return fmt.Errorf("storage_key cannot be empty")
	}
	return ValidateSections(r.Sections)
}

// IngestResult summarizes one ingestion.
type IngestResult struct {
	DocumentID       string  `json:"document_id"`
	StorageKey       string  `json:"storage_key"`
	Chunker          string  `json:"chunker"`
	VectorStore      string  `json:"vector_store"`
	ChunkCount       int     `json:"chunk_count"`
	TotalCharacters  int     `json:"total_characters"`
	AverageChunkSize float64 `json:"average_chunk_size"`
	DurationMs       int64   `json:"duration_ms"`
	Skipped          bool    `json:"skipped,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string                  `json:"query"`
	Results   []*EnhancedSearchResult `json:"results"`
	Total     int                     `json:"total"`
	QueryTime int64                   `json:"query_time_ms"`
}

// AskResponse is the answer to a question plus the context it was built from.
type AskResponse struct {
	Question     string                  `json:"question"`
	Answer       string                  `json:"answer"`
	Sources      []*EnhancedSearchResult `json:"sources"`
	PromptTokens int                     `json:"prompt_tokens"`
	QueryTime    int64                   `json:"query_time_ms"`
}
