package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/chunking"
	"github.com/hyperjump/inqdoc/internal/fileid"
	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/internal/vectorstore"
)

// IngestOptions select how a document is indexed. Empty names use the defaults.
type IngestOptions struct {
	Chunker     string
	VectorStore string
	Metadata    *models.DocumentMetadata
	// Sections carry positions into the extracted text; when set the text is
	// chunked exactly as extracted.
	Sections []*models.DocumentSection
	Force    bool
}

// IngestOptionsFromRequest maps an API request to IngestOptions.
func IngestOptionsFromRequest(req *models.IngestRequest) IngestOptions {
	return IngestOptions{
		Chunker:     req.Chunker,
		VectorStore: req.VectorStore,
		Metadata:    req.Metadata,
		Sections:    req.Sections,
		Force:       req.Force,
	}
}

// IngestDocument extracts, chunks and indexes the document at storageKey,
// replacing any chunks previously indexed for it. Unchanged text with the same
// chunker and store is skipped unless opts.Force is set.
func (p *Pipeline) IngestDocument(ctx context.Context, storageKey string, opts IngestOptions) (*models.IngestResult, error) {
	start := time.Now()
	key := fileid.Normalize(storageKey)
	docID := fileid.DocumentID(key)

	if err := models.ValidateSections(opts.Sections); err != nil {
		return nil, err
	}
	chunker, err := p.Chunkers.Get(opts.Chunker)
	if err != nil {
		return nil, err
	}
	storeName := opts.VectorStore
	if storeName == "" {
		storeName = p.Stores.Default()
	}
	store, err := p.Stores.Get(storeName)
	if err != nil {
		return nil, err
	}

	if opts.Force {
		p.Extractor.Invalidate(ctx, key)
	}
	text, err := p.Extractor.GetDocumentTextContent(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(opts.Sections) == 0 {
		text = chunking.Preprocess(text)
	}
	hash := contentHash(text)

	result := &models.IngestResult{
		DocumentID:  docID,
		StorageKey:  key,
		Chunker:     chunker.Name(),
		VectorStore: storeName,
	}
	var prev *models.IndexedDocument
	if p.Ledger != nil {
		row, err := p.Ledger.GetIndexedDocument(ctx, docID)
		switch {
		case err == nil:
			prev = row
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}
	if !opts.Force && prev != nil && prev.ContentHash == hash && prev.Chunker == result.Chunker && prev.VectorStore == result.VectorStore {
		result.ChunkCount = prev.ChunkCount
		result.TotalCharacters = prev.CharacterCount
		result.Skipped = true
		result.DurationMs = time.Since(start).Milliseconds()
		p.logger.Debug("document unchanged, skipping", zap.String("key", key), zap.String("document_id", docID))
		return result, nil
	}

	chunked, err := chunker.CreateChunks(docID, text, opts.Metadata, opts.Sections)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	docs := make([]*models.VectorStoreDocument, len(chunked.Chunks))
	for i, c := range chunked.Chunks {
		d := c.ToVectorDocument()
		d.Metadata[models.MetaStorageKey] = key
		docs[i] = d
	}

	if err := store.RemoveDocuments(ctx, vectorstore.Filter{models.MetaDocumentID: docID}); err != nil {
		return nil, err
	}
	if err := store.AddDocuments(ctx, docs); err != nil {
		return nil, err
	}
	if prev != nil && prev.VectorStore != "" && prev.VectorStore != storeName {
		p.removeFromPreviousStore(ctx, docID, prev.VectorStore)
	}

	result.ChunkCount = chunked.ChunkCount
	result.TotalCharacters = chunked.TotalCharacters
	result.AverageChunkSize = chunked.AverageChunkSize
	result.DurationMs = time.Since(start).Milliseconds()

	if p.Ledger != nil {
		row := &models.IndexedDocument{
			ID:             docID,
			StorageKey:     key,
			Chunker:        result.Chunker,
			VectorStore:    result.VectorStore,
			ChunkCount:     result.ChunkCount,
			CharacterCount: len(text),
			ContentHash:    hash,
			IndexedAt:      time.Now(),
		}
		if opts.Metadata != nil {
			row.Title = opts.Metadata.Title
		}
		if err := p.Ledger.UpsertIndexedDocument(ctx, row); err != nil {
			return nil, fmt.Errorf("record %s: %w", docID, err)
		}
	}

	p.logger.Info("document indexed",
		zap.String("key", key),
		zap.String("document_id", docID),
		zap.String("chunker", result.Chunker),
		zap.String("store", result.VectorStore),
		zap.Int("chunks", result.ChunkCount),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result, nil
}

// removeFromPreviousStore drops chunks left behind when a document moves to
// another store. Failures are logged; the new index is already in place.
func (p *Pipeline) removeFromPreviousStore(ctx context.Context, docID, storeName string) {
	old, err := p.Stores.Get(storeName)
	if err == nil {
		err = old.RemoveDocuments(ctx, vectorstore.Filter{models.MetaDocumentID: docID})
	}
	if err != nil {
		p.logger.Warn("could not remove chunks from previous store",
			zap.String("document_id", docID),
			zap.String("store", storeName),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("removed chunks from previous store", zap.String("document_id", docID), zap.String("store", storeName))
}

// DeleteDocument removes every chunk of documentID from the store it was indexed
// into (the default store when the ledger has no row) and drops the ledger row.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	storeName := ""
	if p.Ledger != nil {
		row, err := p.Ledger.GetIndexedDocument(ctx, documentID)
		switch {
		case err == nil:
			storeName = row.VectorStore
			p.Extractor.Invalidate(ctx, row.StorageKey)
		case !errors.Is(err, models.ErrNotFound):
			return err
		}
	}
	store, err := p.Stores.Get(storeName)
	if err != nil {
		return err
	}
	if err := store.RemoveDocuments(ctx, vectorstore.Filter{models.MetaDocumentID: documentID}); err != nil {
		return err
	}
	if p.Ledger != nil {
		if err := p.Ledger.DeleteIndexedDocument(ctx, documentID); err != nil {
			return fmt.Errorf("forget %s: %w", documentID, err)
		}
	}
	p.logger.Info("document deleted", zap.String("document_id", documentID), zap.String("store", store.Name()))
	return nil
}

// DeleteStorageKey removes the index entries of the document stored under key.
func (p *Pipeline) DeleteStorageKey(ctx context.Context, key string) error {
	key = fileid.Normalize(key)
	p.Extractor.Invalidate(ctx, key)
	return p.DeleteDocument(ctx, fileid.DocumentID(key))
}

// PutDocument writes raw bytes into the document store and drops any cached text.
func (p *Pipeline) PutDocument(ctx context.Context, key string, data []byte) (string, error) {
	key = fileid.Normalize(key)
	if err := p.Documents.Put(ctx, key, data); err != nil {
		return "", err
	}
	p.Extractor.Invalidate(ctx, key)
	return key, nil
}

// ListDocuments returns ledger rows, most recently indexed first.
func (p *Pipeline) ListDocuments(ctx context.Context, offset, limit int) ([]*models.IndexedDocument, error) {
	if p.Ledger == nil {
		return nil, nil
	}
	return p.Ledger.ListIndexedDocuments(ctx, offset, limit)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
