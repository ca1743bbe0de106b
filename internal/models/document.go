// Package models defines core data structures for documents, chunks, vector records, and search results.
package models

import (
	"fmt"
	"time"
)

// Metadata keys shared by every vector store implementation.
const (
	MetaDocumentID          = "documentId"
	MetaChunkIndex          = "chunkIndex"
	MetaText                = "text"
	MetaStartPosition       = "startPosition"
	MetaEndPosition         = "endPosition"
	MetaSectionTitle        = "sectionTitle"
	MetaSectionLevel        = "sectionLevel"
	MetaDocumentTitle       = "documentTitle"
	MetaDocumentAuthor      = "documentAuthor"
	MetaDocumentCreatedDate = "documentCreatedDate"
	MetaStorageKey          = "storageKey"
)

// DocumentMetadata holds optional descriptive attributes of a source document.
type DocumentMetadata struct {
	Title          string                 `json:"title,omitempty"`
	Author         string                 `json:"author,omitempty"`
	CreatedDate    *time.Time             `json:"created_date,omitempty"`
	ModifiedDate   *time.Time             `json:"modified_date,omitempty"`
	Language       string                 `json:"language,omitempty"`
	PageCount      int                    `json:"page_count,omitempty"`
	WordCount      int                    `json:"word_count,omitempty"`
	CharacterCount int                    `json:"character_count,omitempty"`
	Keywords       []string               `json:"keywords,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// SectionRef is the section a chunk belongs to.
type SectionRef struct {
	Title string `json:"title"`
	Level int    `json:"level"`
}

// DocumentChunk is the unit of retrieval.
type DocumentChunk struct {
	ID            string                 `json:"id"`
	DocumentID    string                 `json:"document_id"`
	Content       string                 `json:"content"`
	Index         int                    `json:"index"`
	StartPosition int                    `json:"start_position"`
	EndPosition   int                    `json:"end_position"`
	StartPage     *int                   `json:"start_page,omitempty"`
	EndPage       *int                   `json:"end_page,omitempty"`
	Section       *SectionRef            `json:"section,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Embedding     []float32              `json:"-"`
}

// ChunkID returns the document-scoped chunk ID for index i.
func ChunkID(documentID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, i)
}

// ChunkingResult is returned by every chunking strategy.
type ChunkingResult struct {
	Chunks           []*DocumentChunk `json:"chunks"`
	TotalCharacters  int              `json:"total_characters"`
	ChunkCount       int              `json:"chunk_count"`
	AverageChunkSize float64          `json:"average_chunk_size"`
}

// NewChunkingResult computes the totals for chunks.
func NewChunkingResult(chunks []*DocumentChunk) *ChunkingResult {
	res := &ChunkingResult{Chunks: chunks, ChunkCount: len(chunks)}
	if res.Chunks == nil {
		res.Chunks = []*DocumentChunk{}
	}
	for _, c := range chunks {
		res.TotalCharacters += len(c.Content)
	}
	if res.ChunkCount > 0 {
		res.AverageChunkSize = float64(res.TotalCharacters) / float64(res.ChunkCount)
	}
	return res
}

// ToVectorDocument converts a chunk into the record persisted by a vector store.
// The chunk ID is reused so later deletion and lookup can address it directly.
func (c *DocumentChunk) ToVectorDocument() *VectorStoreDocument {
	meta := make(map[string]interface{}, len(c.Metadata)+4)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta[MetaDocumentID] = c.DocumentID
	meta[MetaChunkIndex] = c.Index
	meta[MetaStartPosition] = c.StartPosition
	meta[MetaEndPosition] = c.EndPosition
	if c.Section != nil {
		meta[MetaSectionTitle] = c.Section.Title
		meta[MetaSectionLevel] = c.Section.Level
	}
	return &VectorStoreDocument{
		ID:       c.ID,
		Text:     c.Content,
		Metadata: meta,
		Vector:   c.Embedding,
	}
}

// IndexedDocument is the ledger record of an ingested document.
type IndexedDocument struct {
	ID             string    `json:"id" db:"id"`
	StorageKey     string    `json:"storage_key" db:"storage_key"`
	Title          string    `json:"title,omitempty" db:"title"`
	Chunker        string    `json:"chunker" db:"chunker"`
	VectorStore    string    `json:"vector_store" db:"vector_store"`
	ChunkCount     int       `json:"chunk_count" db:"chunk_count"`
	CharacterCount int       `json:"character_count" db:"character_count"`
	ContentHash    string    `json:"content_hash,omitempty" db:"content_hash"`
	IndexedAt      time.Time `json:"indexed_at" db:"indexed_at"`
}
