package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hyperjump/inqdoc/internal/models"
)

// NamePinecone is the registry name of PineconeStore.
const NamePinecone = "pinecone"

// IndexClient is the part of a Pinecone index connection the store uses.
type IndexClient interface {
	Upsert(ctx context.Context, vectors []*pinecone.Vector) error
	Query(ctx context.Context, req *pinecone.QueryByVectorValuesRequest) ([]*pinecone.ScoredVector, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByFilter(ctx context.Context, filter *pinecone.MetadataFilter) error
	Stats(ctx context.Context) (uint32, error)
	Close() error
}

// PineconeConfig locates a Pinecone index.
type PineconeConfig struct {
	APIKey    string
	Index     string
	Host      string // skips the DescribeIndex lookup when set
	Namespace string
}

// PineconeStore stores chunks in a Pinecone index. Chunk text is duplicated into
// the vector metadata so queries return it without a second lookup.
type PineconeStore struct {
	vectorizer
	index  IndexClient
	logger *zap.Logger
}

// NewPineconeStore connects to the configured index.
func NewPineconeStore(ctx context.Context, cfg PineconeConfig, logger *zap.Logger, opts ...Option) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone api key is required")
	}
	if cfg.Index == "" && cfg.Host == "" {
		return nil, fmt.Errorf("pinecone index name or host is required")
	}
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, models.NewVectorStoreError(NamePinecone, models.OpPing, err)
	}
	host := cfg.Host
	if host == "" {
		idx, err := pc.DescribeIndex(ctx, cfg.Index)
		if err != nil {
			return nil, models.NewVectorStoreError(NamePinecone, models.OpPing, fmt.Errorf("describe index %s: %w", cfg.Index, err))
		}
		host = idx.Host
	}
	conn, err := pc.Index(pinecone.NewIndexConnParams{Host: host, Namespace: cfg.Namespace})
	if err != nil {
		return nil, models.NewVectorStoreError(NamePinecone, models.OpPing, fmt.Errorf("connect index: %w", err))
	}
	return NewPineconeStoreWithIndex(&sdkIndex{conn: conn}, logger, opts...), nil
}

// NewPineconeStoreWithIndex builds a store over an existing index client.
func NewPineconeStoreWithIndex(index IndexClient, logger *zap.Logger, opts ...Option) *PineconeStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions(opts)
	return &PineconeStore{
		vectorizer: vectorizer{embedder: o.Embedder, pool: o.Pool},
		index:      index,
		logger:     logger,
	}
}

// Name returns "pinecone".
func (p *PineconeStore) Name() string { return NamePinecone }

// AddDocument upserts one document.
func (p *PineconeStore) AddDocument(ctx context.Context, doc *models.VectorStoreDocument) error {
	return p.AddDocuments(ctx, []*models.VectorStoreDocument{doc})
}

// AddDocuments upserts docs in sequential batches of BatchSize. Embeddings inside
// a batch are generated concurrently, and a batch is sent only when all succeed.
func (p *PineconeStore) AddDocuments(ctx context.Context, docs []*models.VectorStoreDocument) error {
	for n, batch := range batches(docs, BatchSize) {
		start := time.Now()
		vecs, err := p.prepare(ctx, batch)
		if err != nil {
			return models.NewVectorStoreError(NamePinecone, models.OpAdd, err)
		}
		records := make([]*pinecone.Vector, len(batch))
		for i, d := range batch {
			meta, err := toPineconeMetadata(d.Metadata, d.Text)
			if err != nil {
				return models.NewVectorStoreError(NamePinecone, models.OpAdd, fmt.Errorf("metadata for %s: %w", d.ID, err))
			}
			values := vecs[i]
			records[i] = &pinecone.Vector{Id: d.ID, Values: &values, Metadata: meta}
		}
		if err := p.index.Upsert(ctx, records); err != nil {
			return models.NewVectorStoreError(NamePinecone, models.OpAdd, err)
		}
		p.logger.Debug("pinecone batch upserted",
			zap.Int("batch", n),
			zap.Int("vectors", len(records)),
			zap.Duration("took", time.Since(start)),
		)
	}
	return nil
}

// Query returns the nearest vectors with the duplicated text moved out of metadata.
func (p *PineconeStore) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]*models.VectorQueryResult, error) {
	req := &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(opts.topK()),
		IncludeMetadata: true,
	}
	if len(opts.Filter) > 0 {
		f, err := toPineconeFilter(opts.Filter)
		if err != nil {
			return nil, models.NewVectorStoreError(NamePinecone, models.OpQuery, err)
		}
		req.MetadataFilter = f
	}
	matches, err := p.index.Query(ctx, req)
	if err != nil {
		return nil, models.NewVectorStoreError(NamePinecone, models.OpQuery, err)
	}
	out := make([]*models.VectorQueryResult, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.Vector == nil {
			continue
		}
		r := &models.VectorQueryResult{ID: m.Vector.Id, Score: float64(m.Score), Metadata: map[string]interface{}{}}
		if m.Vector.Metadata != nil {
			meta := m.Vector.Metadata.AsMap()
			if text, ok := meta[models.MetaText].(string); ok {
				r.Text = text
			}
			r.Metadata = copyMetadata(meta)
		}
		out = append(out, r)
	}
	return out, nil
}

// RemoveDocument deletes one vector by ID.
func (p *PineconeStore) RemoveDocument(ctx context.Context, id string) error {
	if err := p.index.DeleteByIDs(ctx, []string{id}); err != nil {
		return models.NewVectorStoreError(NamePinecone, models.OpRemove, err)
	}
	return nil
}

// RemoveDocuments deletes by metadata filter. An empty filter is rejected rather
// than wiping the namespace.
func (p *PineconeStore) RemoveDocuments(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return models.NewVectorStoreError(NamePinecone, models.OpRemove, fmt.Errorf("empty filter"))
	}
	f, err := toPineconeFilter(filter)
	if err != nil {
		return models.NewVectorStoreError(NamePinecone, models.OpRemove, err)
	}
	if err := p.index.DeleteByFilter(ctx, f); err != nil {
		return models.NewVectorStoreError(NamePinecone, models.OpRemove, err)
	}
	return nil
}

// IsAvailable asks the index for its stats.
func (p *PineconeStore) IsAvailable(ctx context.Context) bool {
	if _, err := p.index.Stats(ctx); err != nil {
		p.logger.Warn("pinecone unavailable", zap.Error(err))
		return false
	}
	return true
}

// Count returns the total vector count of the index.
func (p *PineconeStore) Count(ctx context.Context) (int64, error) {
	n, err := p.index.Stats(ctx)
	if err != nil {
		return 0, models.NewVectorStoreError(NamePinecone, models.OpPing, err)
	}
	return int64(n), nil
}

// Close releases the index connection.
func (p *PineconeStore) Close() error {
	return p.index.Close()
}

// toPineconeMetadata converts metadata into a Pinecone struct with text added.
// Pinecone accepts strings, numbers, booleans and string lists; nils are dropped
// and anything else is stored as its string form.
func toPineconeMetadata(meta map[string]interface{}, text string) (*pinecone.Metadata, error) {
	fields := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		if cv, ok := pineconeValue(v); ok {
			fields[k] = cv
		}
	}
	fields[models.MetaText] = text
	return structpb.NewStruct(fields)
}

func pineconeValue(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string, bool, int, int32, int64, uint32, float32, float64:
		return t, true
	case *int:
		if t == nil {
			return nil, false
		}
		return *t, true
	case []string:
		list := make([]interface{}, len(t))
		for i, s := range t {
			list[i] = s
		}
		return list, true
	case time.Time:
		return t.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// toPineconeFilter turns equality pairs into {"key": {"$eq": value}}.
func toPineconeFilter(filter Filter) (*pinecone.MetadataFilter, error) {
	fields := make(map[string]interface{}, len(filter))
	for k, v := range filter {
		cv, ok := pineconeValue(v)
		if !ok {
			return nil, fmt.Errorf("filter %s: nil value", k)
		}
		fields[k] = map[string]interface{}{"$eq": cv}
	}
	return structpb.NewStruct(fields)
}

// sdkIndex adapts *pinecone.IndexConnection to IndexClient.
type sdkIndex struct {
	conn *pinecone.IndexConnection
}

func (s *sdkIndex) Upsert(ctx context.Context, vectors []*pinecone.Vector) error {
	_, err := s.conn.UpsertVectors(ctx, vectors)
	return err
}

func (s *sdkIndex) Query(ctx context.Context, req *pinecone.QueryByVectorValuesRequest) ([]*pinecone.ScoredVector, error) {
	resp, err := s.conn.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

func (s *sdkIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	return s.conn.DeleteVectorsById(ctx, ids)
}

func (s *sdkIndex) DeleteByFilter(ctx context.Context, filter *pinecone.MetadataFilter) error {
	return s.conn.DeleteVectorsByFilter(ctx, filter)
}

func (s *sdkIndex) Stats(ctx context.Context) (uint32, error) {
	resp, err := s.conn.DescribeIndexStats(ctx)
	if err != nil {
		return 0, err
	}
	return resp.TotalVectorCount, nil
}

func (s *sdkIndex) Close() error {
	return s.conn.Close()
}

var _ Client = (*PineconeStore)(nil)
var _ Counter = (*PineconeStore)(nil)
