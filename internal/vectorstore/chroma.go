package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/models"
)

// NameChroma is the registry name of ChromaStore.
const NameChroma = "chroma"

// ChromaConfig locates a Chroma collection.
type ChromaConfig struct {
	URL        string
	Collection string
}

// ChromaStore stores chunks in a Chroma collection using cosine distance.
type ChromaStore struct {
	vectorizer
	client     chromago.Client
	collection chromago.Collection
	logger     *zap.Logger
}

// NewChromaStore connects to Chroma and gets or creates the collection.
func NewChromaStore(ctx context.Context, cfg ChromaConfig, logger *zap.Logger, opts ...Option) (*ChromaStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		cfg.Collection = "inqdoc"
	}
	var clientOpts []chromago.ClientOption
	if cfg.URL != "" {
		clientOpts = append(clientOpts, chromago.WithBaseURL(cfg.URL))
	}
	client, err := chromago.NewHTTPClient(clientOpts...)
	if err != nil {
		return nil, models.NewVectorStoreError(NameChroma, models.OpPing, err)
	}
	collection, err := client.GetOrCreateCollection(ctx, cfg.Collection,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", "cosine"),
				chromago.NewStringAttribute("created_by", "inqdoc"),
			),
		),
	)
	if err != nil {
		_ = client.Close()
		return nil, models.NewVectorStoreError(NameChroma, models.OpPing, fmt.Errorf("collection %s: %w", cfg.Collection, err))
	}
	o := buildOptions(opts)
	return &ChromaStore{
		vectorizer: vectorizer{embedder: o.Embedder, pool: o.Pool},
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// Name returns "chroma".
func (c *ChromaStore) Name() string { return NameChroma }

// AddDocument upserts one document.
func (c *ChromaStore) AddDocument(ctx context.Context, doc *models.VectorStoreDocument) error {
	return c.AddDocuments(ctx, []*models.VectorStoreDocument{doc})
}

// AddDocuments upserts docs in sequential batches of BatchSize.
func (c *ChromaStore) AddDocuments(ctx context.Context, docs []*models.VectorStoreDocument) error {
	for _, batch := range batches(docs, BatchSize) {
		vecs, err := c.prepare(ctx, batch)
		if err != nil {
			return models.NewVectorStoreError(NameChroma, models.OpAdd, err)
		}
		ids := make([]chromago.DocumentID, len(batch))
		texts := make([]string, len(batch))
		embs := make([]embeddings.Embedding, len(batch))
		metas := make([]chromago.DocumentMetadata, len(batch))
		for i, d := range batch {
			ids[i] = chromago.DocumentID(d.ID)
			texts[i] = d.Text
			embs[i] = embeddings.NewEmbeddingFromFloat32(vecs[i])
			metas[i] = chromago.NewDocumentMetadata(chromaAttributes(d.Metadata)...)
		}
		err = c.collection.Upsert(ctx,
			chromago.WithIDs(ids...),
			chromago.WithTexts(texts...),
			chromago.WithEmbeddings(embs...),
			chromago.WithMetadatas(metas...),
		)
		if err != nil {
			return models.NewVectorStoreError(NameChroma, models.OpAdd, err)
		}
	}
	return nil
}

// Query returns the nearest documents. Cosine distance d becomes score 1-d.
func (c *ChromaStore) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]*models.VectorQueryResult, error) {
	queryOpts := []chromago.CollectionQueryOption{
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(opts.topK()),
	}
	if where := chromaWhere(opts.Filter); where != nil {
		queryOpts = append(queryOpts, chromago.WithWhereQuery(where))
	}
	res, err := c.collection.Query(ctx, queryOpts...)
	if err != nil {
		return nil, models.NewVectorStoreError(NameChroma, models.OpQuery, err)
	}
	idGroups := res.GetIDGroups()
	if len(idGroups) == 0 {
		return []*models.VectorQueryResult{}, nil
	}
	docGroups := res.GetDocumentsGroups()
	metaGroups := res.GetMetadatasGroups()
	distGroups := res.GetDistancesGroups()

	out := make([]*models.VectorQueryResult, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		r := &models.VectorQueryResult{ID: string(id), Metadata: map[string]interface{}{}}
		if len(docGroups) > 0 && i < len(docGroups[0]) && docGroups[0][i] != nil {
			r.Text = docGroups[0][i].ContentString()
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			r.Metadata = chromaMetadataMap(metaGroups[0][i], c.logger)
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			r.Score = 1 - float64(distGroups[0][i])
		}
		out = append(out, r)
	}
	return out, nil
}

// RemoveDocument deletes one document by ID.
func (c *ChromaStore) RemoveDocument(ctx context.Context, id string) error {
	if err := c.collection.Delete(ctx, chromago.WithIDsDelete(chromago.DocumentID(id))); err != nil {
		return models.NewVectorStoreError(NameChroma, models.OpRemove, err)
	}
	return nil
}

// RemoveDocuments deletes by a where clause built from filter.
func (c *ChromaStore) RemoveDocuments(ctx context.Context, filter Filter) error {
	where := chromaWhere(filter)
	if where == nil {
		return models.NewVectorStoreError(NameChroma, models.OpRemove, fmt.Errorf("empty filter"))
	}
	if err := c.collection.Delete(ctx, chromago.WithWhereDelete(where)); err != nil {
		return models.NewVectorStoreError(NameChroma, models.OpRemove, err)
	}
	return nil
}

// IsAvailable sends a heartbeat.
func (c *ChromaStore) IsAvailable(ctx context.Context) bool {
	if err := c.client.Heartbeat(ctx); err != nil {
		c.logger.Warn("chroma unavailable", zap.Error(err))
		return false
	}
	return true
}

// Count returns the number of documents in the collection.
func (c *ChromaStore) Count(ctx context.Context) (int64, error) {
	n, err := c.collection.Count(ctx)
	if err != nil {
		return 0, models.NewVectorStoreError(NameChroma, models.OpPing, err)
	}
	return int64(n), nil
}

// Close releases the HTTP client.
func (c *ChromaStore) Close() error {
	return c.client.Close()
}

// chromaAttributes converts metadata to Chroma attributes in key order. Chroma
// metadata is flat, so lists and other values are stored as strings.
func chromaAttributes(meta map[string]interface{}) []*chromago.MetaAttribute {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if k != models.MetaText && meta[k] != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	attrs := make([]*chromago.MetaAttribute, 0, len(keys))
	for _, k := range keys {
		switch v := meta[k].(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(k, v))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(k, v))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(v)))
		case int32:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(v)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(k, v))
		case float32:
			attrs = append(attrs, chromago.NewFloatAttribute(k, float64(v)))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(k, v))
		case time.Time:
			attrs = append(attrs, chromago.NewStringAttribute(k, v.UTC().Format(time.RFC3339)))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(k, fmt.Sprint(v)))
		}
	}
	return attrs
}

// chromaWhere builds an AND of equality clauses, or nil for an empty filter.
func chromaWhere(filter Filter) chromago.WhereClause {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	clauses := make([]chromago.WhereClause, 0, len(keys))
	for _, k := range keys {
		switch v := filter[k].(type) {
		case string:
			clauses = append(clauses, chromago.EqString(k, v))
		case bool:
			clauses = append(clauses, chromago.EqBool(k, v))
		case int:
			clauses = append(clauses, chromago.EqInt(k, v))
		case int64:
			clauses = append(clauses, chromago.EqInt(k, int(v)))
		case float32:
			clauses = append(clauses, chromago.EqFloat(k, v))
		case float64:
			if n, ok := models.AsInt(v); ok {
				clauses = append(clauses, chromago.EqInt(k, n))
			} else {
				clauses = append(clauses, chromago.EqFloat(k, float32(v)))
			}
		default:
			clauses = append(clauses, chromago.EqString(k, fmt.Sprint(v)))
		}
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return chromago.And(clauses...)
}

// chromaMetadataMap converts document metadata to a plain map through its JSON form.
func chromaMetadataMap(meta chromago.DocumentMetadata, logger *zap.Logger) map[string]interface{} {
	out := map[string]interface{}{}
	raw, err := json.Marshal(meta)
	if err != nil {
		logger.Warn("chroma metadata not decodable", zap.Error(err))
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.Warn("chroma metadata not decodable", zap.Error(err))
		return map[string]interface{}{}
	}
	delete(out, models.MetaText)
	return out
}

var _ Client = (*ChromaStore)(nil)
var _ Counter = (*ChromaStore)(nil)
