package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/inqdoc/internal/models"
)

// SQLiteStorage stores document blobs and the indexed-document ledger in SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var (
	_ DocumentStore = (*SQLiteStorage)(nil)
	_ Ledger        = (*SQLiteStorage)(nil)
)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS indexed_documents (
		id TEXT PRIMARY KEY,
		storage_key TEXT NOT NULL,
		title TEXT,
		chunker TEXT NOT NULL,
		vector_store TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		character_count INTEGER NOT NULL,
		content_hash TEXT,
		indexed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_indexed_documents_indexed_at ON indexed_documents(indexed_at);
	CREATE INDEX IF NOT EXISTS idx_indexed_documents_storage_key ON indexed_documents(storage_key);
	`
	_, err := db.Exec(schema)
	return err
}

// Fetch returns the blob stored under key.
func (s *SQLiteStorage) Fetch(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put inserts or replaces the blob under key.
func (s *SQLiteStorage) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", models.ErrInvalidKey)
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now(),
	)
	return err
}

// Delete removes the blob under key.
func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s: %w", key, models.ErrNotFound)
	}
	return nil
}

// List returns the blob keys starting with prefix, sorted.
func (s *SQLiteStorage) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM blobs WHERE substr(key, 1, ?) = ? ORDER BY key`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// UpsertIndexedDocument inserts the ledger row or replaces it on reindex.
func (s *SQLiteStorage) UpsertIndexedDocument(ctx context.Context, doc *models.IndexedDocument) error {
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexed_documents (id, storage_key, title, chunker, vector_store, chunk_count, character_count, content_hash, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   storage_key = excluded.storage_key,
		   title = excluded.title,
		   chunker = excluded.chunker,
		   vector_store = excluded.vector_store,
		   chunk_count = excluded.chunk_count,
		   character_count = excluded.character_count,
		   content_hash = excluded.content_hash,
		   indexed_at = excluded.indexed_at`,
		doc.ID, doc.StorageKey, doc.Title, doc.Chunker, doc.VectorStore, doc.ChunkCount, doc.CharacterCount, doc.ContentHash, doc.IndexedAt,
	)
	return err
}

const indexedColumns = `id, storage_key, COALESCE(title, ''), chunker, vector_store, chunk_count, character_count, COALESCE(content_hash, ''), indexed_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIndexed(row scanner) (*models.IndexedDocument, error) {
	var doc models.IndexedDocument
	err := row.Scan(&doc.ID, &doc.StorageKey, &doc.Title, &doc.Chunker, &doc.VectorStore,
		&doc.ChunkCount, &doc.CharacterCount, &doc.ContentHash, &doc.IndexedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetIndexedDocument returns the ledger row for id.
func (s *SQLiteStorage) GetIndexedDocument(ctx context.Context, id string) (*models.IndexedDocument, error) {
	doc, err := scanIndexed(s.db.QueryRowContext(ctx,
		`SELECT `+indexedColumns+` FROM indexed_documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return doc, err
}

// DeleteIndexedDocument removes the ledger row for id.
func (s *SQLiteStorage) DeleteIndexedDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_documents WHERE id = ?`, id)
	return err
}

// ListIndexedDocuments returns ledger rows, most recently indexed first.
func (s *SQLiteStorage) ListIndexedDocuments(ctx context.Context, offset, limit int) ([]*models.IndexedDocument, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+indexedColumns+` FROM indexed_documents ORDER BY indexed_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.IndexedDocument
	for rows.Next() {
		doc, err := scanIndexed(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountIndexedDocuments returns the number of ledger rows.
func (s *SQLiteStorage) CountIndexedDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_documents`).Scan(&count)
	return count, err
}

// CountBlobs returns the number of stored blobs.
func (s *SQLiteStorage) CountBlobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&count)
	return count, err
}

// DiskUsage returns the size of the database and its WAL files.
func (s *SQLiteStorage) DiskUsage() (int64, error) {
	return DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

