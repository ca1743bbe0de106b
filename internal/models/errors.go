package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document byte store has no object for a key.
	ErrNotFound = errors.New("not found")
	// ErrInvalidKey is returned for storage keys that are empty or leave the store root.
	ErrInvalidKey = errors.New("invalid storage key")
	// ErrAllProvidersFailed is returned when every completion provider failed.
	ErrAllProvidersFailed = errors.New("all completion providers failed")
	// ErrNoProviders is returned when a gateway has no providers configured.
	ErrNoProviders = errors.New("no completion providers configured")
)

// ExtractionFailedError means direct extraction and the LLM fallback both failed
// to produce sufficient text.
type ExtractionFailedError struct {
	StorageKey string
	Cause      error
}

func (e *ExtractionFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed for %s: %v", e.StorageKey, e.Cause)
	}
	return fmt.Sprintf("extraction failed for %s: insufficient text", e.StorageKey)
}

func (e *ExtractionFailedError) Unwrap() error { return e.Cause }

// UnsupportedFormatError means the extension is unknown and plain-text decoding failed.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return "unsupported format: no extension"
	}
	return fmt.Sprintf("unsupported format: %s", e.Extension)
}

// EmbeddingFailureError means the embedding service could not produce a vector.
type EmbeddingFailureError struct {
	Text  string
	Cause error
}

func (e *EmbeddingFailureError) Error() string {
	snippet := e.Text
	if len(snippet) > 40 {
		snippet = snippet[:40] + "..."
	}
	if e.Cause != nil {
		return fmt.Sprintf("embedding failed for %q: %v", snippet, e.Cause)
	}
	return fmt.Sprintf("embedding failed for %q", snippet)
}

func (e *EmbeddingFailureError) Unwrap() error { return e.Cause }

// VectorOp identifies the vector store operation that failed.
type VectorOp string

const (
	OpAdd    VectorOp = "add"
	OpQuery  VectorOp = "query"
	OpRemove VectorOp = "remove"
	OpPing   VectorOp = "ping"
)

// VectorStoreError wraps any failure of an underlying vector database.
type VectorStoreError struct {
	Store string
	Op    VectorOp
	Err   error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

func (e *VectorStoreError) Unwrap() error { return e.Err }

// NewVectorStoreError wraps err unless it already is an EmbeddingFailureError or VectorStoreError.
func NewVectorStoreError(store string, op VectorOp, err error) error {
	if err == nil {
		return nil
	}
	var emb *EmbeddingFailureError
	if errors.As(err, &emb) {
		return err
	}
	var vs *VectorStoreError
	if errors.As(err, &vs) {
		return err
	}
	return &VectorStoreError{Store: store, Op: op, Err: err}
}

// NoImplementationError means a registry has nothing registered under Name,
// or no default when Name is empty.
type NoImplementationError struct {
	Kind string
	Name string
}

func (e *NoImplementationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("no default %s registered", e.Kind)
	}
	return fmt.Sprintf("no %s registered under %q", e.Kind, e.Name)
}
