// Package storage holds raw document bytes and the ledger of indexed documents.
package storage

import (
	"context"

	"github.com/hyperjump/inqdoc/internal/models"
)

// DocumentStore reads and writes raw document bytes addressed by storage key.
// Keys are slash-separated relative paths. Fetch of a missing key wraps models.ErrNotFound.
type DocumentStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Ledger records which documents are indexed.
type Ledger interface {
	UpsertIndexedDocument(ctx context.Context, doc *models.IndexedDocument) error
	GetIndexedDocument(ctx context.Context, id string) (*models.IndexedDocument, error)
	DeleteIndexedDocument(ctx context.Context, id string) error
	ListIndexedDocuments(ctx context.Context, offset, limit int) ([]*models.IndexedDocument, error)
	CountIndexedDocuments(ctx context.Context) (int64, error)
}
