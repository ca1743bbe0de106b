// Package vectorstore persists chunk embeddings with metadata and answers
// nearest-neighbor queries. Pinecone, Chroma, Milvus and an in-memory store
// share one Client contract and are resolved through a Registry.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"

	"github.com/hyperjump/inqdoc/internal/embedding"
	"github.com/hyperjump/inqdoc/internal/models"
)

const (
	// DefaultTopK is used when QueryOptions.TopK is not positive.
	DefaultTopK = 10
	// BatchSize is the largest upsert sent to a store in one request.
	BatchSize = 100
)

// Filter is a flat equality match on metadata keys such as documentId or chunkIndex.
type Filter map[string]interface{}

// QueryOptions controls a nearest-neighbor query.
type QueryOptions struct {
	TopK   int
	Filter Filter
}

func (o QueryOptions) topK() int {
	if o.TopK <= 0 {
		return DefaultTopK
	}
	return o.TopK
}

// Client is implemented by every vector store.
type Client interface {
	// AddDocument stores one document, embedding its text first when it has no vector.
	AddDocument(ctx context.Context, doc *models.VectorStoreDocument) error
	// AddDocuments stores documents in sub-batches of BatchSize.
	AddDocuments(ctx context.Context, docs []*models.VectorStoreDocument) error
	// Query returns the closest documents, most similar first.
	Query(ctx context.Context, vector []float32, opts QueryOptions) ([]*models.VectorQueryResult, error)
	RemoveDocument(ctx context.Context, id string) error
	// RemoveDocuments deletes every document whose metadata matches filter.
	RemoveDocuments(ctx context.Context, filter Filter) error
	// IsAvailable reports whether the backing service answers. It never errors.
	IsAvailable(ctx context.Context) bool
	Name() string
	Close() error
}

// Counter is implemented by stores that can report how many vectors they hold.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// vectorizer fills in missing vectors before an upsert.
type vectorizer struct {
	embedder embedding.Embedder
	pool     *ants.Pool
}

// prepare returns a vector for every document, reusing precomputed ones. Missing
// vectors are embedded concurrently on the pool. Any embedding failure fails the
// whole batch so that nothing from it is written.
func (v vectorizer) prepare(ctx context.Context, docs []*models.VectorStoreDocument) ([][]float32, error) {
	out := make([][]float32, len(docs))
	var (
		missing []int
		texts   []string
	)
	for i, d := range docs {
		if len(d.Vector) > 0 {
			out[i] = d.Vector
			continue
		}
		missing = append(missing, i)
		texts = append(texts, d.Text)
	}
	if len(missing) == 0 {
		return out, nil
	}
	if v.embedder == nil {
		return nil, &models.EmbeddingFailureError{Text: texts[0], Cause: fmt.Errorf("no embedding service configured")}
	}
	vecs, err := embedding.EmbedAll(ctx, v.pool, v.embedder, texts)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		out[i] = vecs[j]
	}
	return out, nil
}

// batches splits docs into consecutive slices of at most size elements.
func batches(docs []*models.VectorStoreDocument, size int) [][]*models.VectorStoreDocument {
	var out [][]*models.VectorStoreDocument
	for start := 0; start < len(docs); start += size {
		end := start + size
		if end > len(docs) {
			end = len(docs)
		}
		out = append(out, docs[start:end])
	}
	return out
}

// copyMetadata returns a shallow copy of m without the duplicated text field.
func copyMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == models.MetaText {
			continue
		}
		out[k] = v
	}
	return out
}

// Options configures the shared parts of a store.
type Options struct {
	Embedder embedding.Embedder
	Pool     *ants.Pool
}

// Option configures a store.
type Option func(*Options)

// WithEmbedder sets the service used for documents that arrive without a vector.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *Options) { o.Embedder = e }
}

// WithPool bounds concurrent embedding calls. Without a pool they run sequentially.
func WithPool(p *ants.Pool) Option {
	return func(o *Options) { o.Pool = p }
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
