// Package search runs hybrid retrieval over a vector store: semantic similarity
// blended with a keyword score, optional reranking, and neighbor-chunk context.
package search

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/embedding"
	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/internal/vectorstore"
)

const (
	// DefaultTopK is the number of results returned when Options.TopK is not positive.
	DefaultTopK = 10
	// MaxCandidates caps the over-fetch from the vector store.
	MaxCandidates = 50
)

// Options controls a hybrid search.
type Options struct {
	TopK           int
	Weights        Weights
	Rerank         bool
	EnhanceContext bool
	// Filter is merged into the main vector query, e.g. to restrict to one document.
	Filter vectorstore.Filter
	// VectorStore names the registry entry to query; empty uses the default.
	VectorStore string
}

// DefaultOptions returns topK 10, 0.7/0.3 weights, reranking and context enhancement.
func DefaultOptions() Options {
	return Options{
		TopK:           DefaultTopK,
		Weights:        DefaultWeights,
		Rerank:         true,
		EnhanceContext: true,
	}
}

// OptionsFromRequest applies the fields set on req over DefaultOptions.
func OptionsFromRequest(req *models.SearchRequest) Options {
	return DefaultOptions().WithRequest(req)
}

// WithRequest returns a copy of o with the fields set on req applied.
func (o Options) WithRequest(req *models.SearchRequest) Options {
	if req.TopK > 0 {
		o.TopK = req.TopK
	}
	if req.SemanticWeight != nil {
		o.Weights.Semantic = *req.SemanticWeight
	}
	if req.KeywordWeight != nil {
		o.Weights.Keyword = *req.KeywordWeight
	}
	if req.Rerank != nil {
		o.Rerank = *req.Rerank
	}
	if req.EnhanceContext != nil {
		o.EnhanceContext = *req.EnhanceContext
	}
	if req.DocumentID != "" {
		o.Filter = vectorstore.Filter{models.MetaDocumentID: req.DocumentID}
	}
	if req.VectorStore != "" {
		o.VectorStore = req.VectorStore
	}
	return o
}

// Searcher runs hybrid searches against stores resolved from a registry.
type Searcher struct {
	embedder embedding.Embedder
	stores   *vectorstore.Registry
	logger   *zap.Logger
}

// NewSearcher creates a searcher.
func NewSearcher(embedder embedding.Embedder, stores *vectorstore.Registry, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{embedder: embedder, stores: stores, logger: logger}
}

// HybridSearch embeds the optimized query, over-fetches min(topK*2, 50) candidates,
// scores each by Blend(semantic, keyword), optionally reranks, truncates to topK and
// optionally attaches the neighboring chunks' text.
func (s *Searcher) HybridSearch(ctx context.Context, query string, opts Options) ([]*models.EnhancedSearchResult, error) {
	start := time.Now()
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	store, err := s.stores.Get(opts.VectorStore)
	if err != nil {
		return nil, err
	}

	optimized := OptimizeQuery(query)
	vec, err := embedding.Generate(ctx, s.embedder, optimized)
	if err != nil {
		return nil, err
	}

	candidates := opts.TopK * 2
	if candidates > MaxCandidates {
		candidates = MaxCandidates
	}
	hits, err := store.Query(ctx, vec, vectorstore.QueryOptions{TopK: candidates, Filter: opts.Filter})
	if err != nil {
		return nil, err
	}

	keywords := ExtractKeywords(query)
	results := make([]*models.EnhancedSearchResult, 0, len(hits))
	for _, h := range hits {
		semantic := h.Score
		kw := KeywordScore(h.Text, keywords)
		r := &models.EnhancedSearchResult{
			VectorQueryResult:    *h,
			SemanticScore:        semantic,
			KeywordScore:         kw,
			HighlightedContent:   HighlightMatches(h.Text, keywords),
			RelevanceExplanation: Explain(semantic, kw, opts.Weights),
		}
		r.Score = Blend(semantic, kw, opts.Weights)
		results = append(results, r)
	}

	if opts.Rerank {
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	}
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	if opts.EnhanceContext {
		s.enhance(ctx, store, results, len(vec))
	}

	s.logger.Debug("hybrid search",
		zap.String("query", query),
		zap.String("optimized", optimized),
		zap.String("store", store.Name()),
		zap.Int("candidates", len(hits)),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return results, nil
}

// enhance fills PrecedingContext and FollowingContext from the adjacent chunks of
// the same document. Lookups that fail or find nothing leave the field empty.
func (s *Searcher) enhance(ctx context.Context, store vectorstore.Client, results []*models.EnhancedSearchResult, dims int) {
	zero := make([]float32, dims)
	for _, r := range results {
		docID, ok := r.DocumentID()
		if !ok {
			continue
		}
		idx, ok := r.ChunkIndex()
		if !ok {
			continue
		}
		if idx > 0 {
			r.PrecedingContext = s.neighbor(ctx, store, zero, docID, idx-1)
		}
		r.FollowingContext = s.neighbor(ctx, store, zero, docID, idx+1)
	}
}

func (s *Searcher) neighbor(ctx context.Context, store vectorstore.Client, zero []float32, docID string, idx int) string {
	hits, err := store.Query(ctx, zero, vectorstore.QueryOptions{
		TopK:   1,
		Filter: vectorstore.Filter{models.MetaDocumentID: docID, models.MetaChunkIndex: idx},
	})
	if err != nil {
		s.logger.Warn("adjacent chunk lookup failed",
			zap.String("document_id", docID),
			zap.Int("chunk_index", idx),
			zap.Error(err),
		)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}
	return hits[0].Text
}

