package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/models"
)

// NameMilvus is the registry name of MilvusStore.
const NameMilvus = "milvus"

// Milvus field names.
const (
	milvusFieldID         = "id"
	milvusFieldEmbedding  = "embedding"
	milvusFieldDocumentID = "document_id"
	milvusFieldChunkIndex = "chunk_index"
	milvusFieldText       = "text"
	milvusFieldMetadata   = "metadata"
)

var milvusOutputFields = []string{milvusFieldDocumentID, milvusFieldChunkIndex, milvusFieldText, milvusFieldMetadata}

// MilvusConfig locates a Milvus collection.
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dimensions int
}

// MilvusStore stores chunks in a Milvus collection with a cosine index.
type MilvusStore struct {
	vectorizer
	client     *milvusclient.Client
	collection string
	logger     *zap.Logger
}

// NewMilvusStore connects to Milvus and creates and loads the collection if needed.
func NewMilvusStore(ctx context.Context, cfg MilvusConfig, logger *zap.Logger, opts ...Option) (*MilvusStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		cfg.Collection = "inqdoc_chunks"
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("milvus dimensions must be positive")
	}
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, models.NewVectorStoreError(NameMilvus, models.OpPing, fmt.Errorf("connect: %w", err))
	}
	o := buildOptions(opts)
	s := &MilvusStore{
		vectorizer: vectorizer{embedder: o.Embedder, pool: o.Pool},
		client:     client,
		collection: cfg.Collection,
		logger:     logger,
	}
	if err := s.ensureCollection(ctx, cfg.Dimensions); err != nil {
		_ = client.Close(ctx)
		return nil, models.NewVectorStoreError(NameMilvus, models.OpPing, err)
	}
	return s, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context, dims int) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(s.collection).
			WithDescription("inqdoc document chunks").
			WithAutoID(false).
			WithField(entity.NewField().WithName(milvusFieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(milvusFieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dims))).
			WithField(entity.NewField().WithName(milvusFieldDocumentID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(milvusFieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(milvusFieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(milvusFieldMetadata).WithDataType(entity.FieldTypeJSON))
		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, schema)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, milvusFieldEmbedding, index.NewAutoIndex(entity.COSINE)))
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("wait for index: %w", err)
		}
		s.logger.Info("milvus collection created", zap.String("collection", s.collection), zap.Int("dimensions", dims))
	}
	load, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := load.Await(ctx); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	return nil
}

// Name returns "milvus".
func (s *MilvusStore) Name() string { return NameMilvus }

// AddDocument upserts one document.
func (s *MilvusStore) AddDocument(ctx context.Context, doc *models.VectorStoreDocument) error {
	return s.AddDocuments(ctx, []*models.VectorStoreDocument{doc})
}

// AddDocuments upserts docs in sequential batches and flushes once at the end.
func (s *MilvusStore) AddDocuments(ctx context.Context, docs []*models.VectorStoreDocument) error {
	if len(docs) == 0 {
		return nil
	}
	for _, batch := range batches(docs, BatchSize) {
		vecs, err := s.prepare(ctx, batch)
		if err != nil {
			return models.NewVectorStoreError(NameMilvus, models.OpAdd, err)
		}
		cols, err := milvusColumns(batch, vecs)
		if err != nil {
			return models.NewVectorStoreError(NameMilvus, models.OpAdd, err)
		}
		if _, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection, cols...)); err != nil {
			return models.NewVectorStoreError(NameMilvus, models.OpAdd, err)
		}
	}
	flush, err := s.client.Flush(ctx, milvusclient.NewFlushOption(s.collection))
	if err != nil {
		return models.NewVectorStoreError(NameMilvus, models.OpAdd, fmt.Errorf("flush: %w", err))
	}
	if err := flush.Await(ctx); err != nil {
		return models.NewVectorStoreError(NameMilvus, models.OpAdd, fmt.Errorf("wait for flush: %w", err))
	}
	return nil
}

func milvusColumns(batch []*models.VectorStoreDocument, vecs [][]float32) ([]column.Column, error) {
	ids := make([]string, len(batch))
	docIDs := make([]string, len(batch))
	chunkIdx := make([]int64, len(batch))
	texts := make([]string, len(batch))
	metas := make([][]byte, len(batch))
	for i, d := range batch {
		ids[i] = d.ID
		texts[i] = d.Text
		if v, ok := d.Metadata[models.MetaDocumentID].(string); ok {
			docIDs[i] = v
		}
		if n, ok := models.AsInt(d.Metadata[models.MetaChunkIndex]); ok {
			chunkIdx[i] = int64(n)
		}
		raw, err := json.Marshal(copyMetadata(d.Metadata))
		if err != nil {
			return nil, fmt.Errorf("metadata for %s: %w", d.ID, err)
		}
		metas[i] = raw
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %s has %d dimensions, want %d", batch[i].ID, len(v), dim)
		}
	}
	return []column.Column{
		column.NewColumnVarChar(milvusFieldID, ids),
		column.NewColumnFloatVector(milvusFieldEmbedding, dim, vecs),
		column.NewColumnVarChar(milvusFieldDocumentID, docIDs),
		column.NewColumnInt64(milvusFieldChunkIndex, chunkIdx),
		column.NewColumnVarChar(milvusFieldText, texts),
		column.NewColumnJSONBytes(milvusFieldMetadata, metas),
	}, nil
}

// Query runs an ANN search. A zero vector with a filter becomes a scalar query,
// since cosine similarity is undefined for it; those results score 0.
func (s *MilvusStore) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]*models.VectorQueryResult, error) {
	expr := milvusExpr(opts.Filter)
	if isZeroVector(vector) && expr != "" {
		rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(s.collection).
			WithFilter(expr).
			WithOutputFields(milvusOutputFields...).
			WithLimit(opts.topK()))
		if err != nil {
			return nil, models.NewVectorStoreError(NameMilvus, models.OpQuery, err)
		}
		return s.results(rs, nil), nil
	}
	search := milvusclient.NewSearchOption(s.collection, opts.topK(), []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(milvusFieldEmbedding).
		WithOutputFields(milvusOutputFields...)
	if expr != "" {
		search = search.WithFilter(expr)
	}
	sets, err := s.client.Search(ctx, search)
	if err != nil {
		return nil, models.NewVectorStoreError(NameMilvus, models.OpQuery, err)
	}
	if len(sets) == 0 {
		return []*models.VectorQueryResult{}, nil
	}
	return s.results(sets[0], sets[0].Scores), nil
}

func (s *MilvusStore) results(rs milvusclient.ResultSet, scores []float32) []*models.VectorQueryResult {
	out := make([]*models.VectorQueryResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		r := &models.VectorQueryResult{Metadata: map[string]interface{}{}}
		if i < len(scores) {
			r.Score = float64(scores[i])
		}
		if ids, ok := rs.IDs.(*column.ColumnVarChar); ok && i < ids.Len() {
			r.ID = ids.Data()[i]
		}
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				switch col.Name() {
				case milvusFieldText:
					r.Text = col.Data()[i]
				case milvusFieldID:
					r.ID = col.Data()[i]
				}
			case *column.ColumnJSONBytes:
				if col.Name() == milvusFieldMetadata {
					if err := json.Unmarshal(col.Data()[i], &r.Metadata); err != nil {
						s.logger.Warn("milvus metadata not decodable", zap.String("id", r.ID), zap.Error(err))
					}
				}
			}
		}
		out = append(out, r)
	}
	return out
}

// RemoveDocument deletes one row by primary key.
func (s *MilvusStore) RemoveDocument(ctx context.Context, id string) error {
	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithStringIDs(milvusFieldID, []string{id})); err != nil {
		return models.NewVectorStoreError(NameMilvus, models.OpRemove, err)
	}
	return nil
}

// RemoveDocuments deletes every row matching filter.
func (s *MilvusStore) RemoveDocuments(ctx context.Context, filter Filter) error {
	expr := milvusExpr(filter)
	if expr == "" {
		return models.NewVectorStoreError(NameMilvus, models.OpRemove, fmt.Errorf("empty filter"))
	}
	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithExpr(expr)); err != nil {
		return models.NewVectorStoreError(NameMilvus, models.OpRemove, err)
	}
	return nil
}

// IsAvailable checks that the collection is reachable.
func (s *MilvusStore) IsAvailable(ctx context.Context) bool {
	ok, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		s.logger.Warn("milvus unavailable", zap.Error(err))
		return false
	}
	return ok
}

// Count returns the collection row count.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(s.collection))
	if err != nil {
		return 0, models.NewVectorStoreError(NameMilvus, models.OpPing, err)
	}
	if v, ok := stats["row_count"]; ok {
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, nil
}

// Close closes the client connection.
func (s *MilvusStore) Close() error {
	return s.client.Close(context.Background())
}

// milvusExpr builds a boolean expression from filter. documentId and chunkIndex
// map to their scalar columns; other keys are looked up in the JSON metadata.
func milvusExpr(filter Filter) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var field string
		switch k {
		case models.MetaDocumentID:
			field = milvusFieldDocumentID
		case models.MetaChunkIndex:
			field = milvusFieldChunkIndex
		default:
			field = fmt.Sprintf("%s[%s]", milvusFieldMetadata, strconv.Quote(k))
		}
		parts = append(parts, field+" == "+milvusLiteral(filter[k]))
	}
	return strings.Join(parts, " && ")
}

func milvusLiteral(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case bool:
		return strconv.FormatBool(t)
	}
	if f, ok := asFloat(v); ok {
		if n, ok := models.AsInt(v); ok {
			return strconv.Itoa(n)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.Quote(fmt.Sprint(v))
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

var _ Client = (*MilvusStore)(nil)
var _ Counter = (*MilvusStore)(nil)
