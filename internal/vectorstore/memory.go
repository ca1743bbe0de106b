package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/pkg/utils"
)

// NameMemory is the registry name of MemoryStore.
const NameMemory = "memory"

type memoryEntry struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Vector   []float32              `json:"vector"`
}

// MemoryStore is a brute-force cosine store for tests and local development.
// Insertion order is kept so equal scores come back in a stable order.
type MemoryStore struct {
	vectorizer
	mu      sync.RWMutex
	order   []string
	entries map[string]*memoryEntry
	path    string
}

// NewMemoryStore returns an empty store. A non-empty path is loaded now and
// written back on Close.
func NewMemoryStore(path string, opts ...Option) (*MemoryStore, error) {
	o := buildOptions(opts)
	m := &MemoryStore{
		vectorizer: vectorizer{embedder: o.Embedder, pool: o.Pool},
		entries:    make(map[string]*memoryEntry),
		path:       path,
	}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns "memory".
func (m *MemoryStore) Name() string { return NameMemory }

// AddDocument stores doc, replacing any entry with the same ID.
func (m *MemoryStore) AddDocument(ctx context.Context, doc *models.VectorStoreDocument) error {
	return m.AddDocuments(ctx, []*models.VectorStoreDocument{doc})
}

// AddDocuments stores docs batch by batch. A batch with a failed embedding is skipped
// entirely, and batches already written stay written.
func (m *MemoryStore) AddDocuments(ctx context.Context, docs []*models.VectorStoreDocument) error {
	for _, batch := range batches(docs, BatchSize) {
		vecs, err := m.prepare(ctx, batch)
		if err != nil {
			return models.NewVectorStoreError(NameMemory, models.OpAdd, err)
		}
		m.mu.Lock()
		for i, d := range batch {
			if _, ok := m.entries[d.ID]; !ok {
				m.order = append(m.order, d.ID)
			}
			vec := make([]float32, len(vecs[i]))
			copy(vec, vecs[i])
			m.entries[d.ID] = &memoryEntry{ID: d.ID, Text: d.Text, Metadata: copyMetadata(d.Metadata), Vector: vec}
		}
		m.mu.Unlock()
	}
	return nil
}

// Query ranks matching entries by cosine similarity to vector.
func (m *MemoryStore) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]*models.VectorQueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewVectorStoreError(NameMemory, models.OpQuery, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		e     *memoryEntry
		score float64
	}
	var hits []scored
	for _, id := range m.order {
		e := m.entries[id]
		if !matches(e.Metadata, opts.Filter) {
			continue
		}
		hits = append(hits, scored{e: e, score: utils.CosineSimilarity(vector, e.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	k := opts.topK()
	if k > len(hits) {
		k = len(hits)
	}
	out := make([]*models.VectorQueryResult, k)
	for i := 0; i < k; i++ {
		out[i] = &models.VectorQueryResult{
			ID:       hits[i].e.ID,
			Text:     hits[i].e.Text,
			Metadata: copyMetadata(hits[i].e.Metadata),
			Score:    hits[i].score,
		}
	}
	return out, nil
}

// RemoveDocument deletes one entry. Unknown IDs are ignored.
func (m *MemoryStore) RemoveDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(func(e *memoryEntry) bool { return e.ID == id })
	return nil
}

// RemoveDocuments deletes every entry whose metadata matches filter. An empty
// filter is rejected, as in the remote stores.
func (m *MemoryStore) RemoveDocuments(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return models.NewVectorStoreError(NameMemory, models.OpRemove, fmt.Errorf("empty filter"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(func(e *memoryEntry) bool { return matches(e.Metadata, filter) })
	return nil
}

func (m *MemoryStore) removeLocked(drop func(*memoryEntry) bool) {
	kept := m.order[:0]
	for _, id := range m.order {
		if drop(m.entries[id]) {
			delete(m.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

// IsAvailable is always true.
func (m *MemoryStore) IsAvailable(ctx context.Context) bool { return true }

// Count returns the number of stored vectors.
func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.order)), nil
}

// Close saves the store when it was opened with a path.
func (m *MemoryStore) Close() error {
	return m.Save(m.path)
}

// Save writes a JSON snapshot to path, creating the directory if needed.
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	snapshot := make([]*memoryEntry, 0, len(m.order))
	for _, id := range m.order {
		snapshot = append(snapshot, m.entries[id])
	}
	data, err := json.Marshal(snapshot)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode memory store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create memory store dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write memory store: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the contents with the snapshot at path. A missing file leaves
// the store unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read memory store: %w", err)
	}
	var snapshot []*memoryEntry
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode memory store: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = m.order[:0]
	m.entries = make(map[string]*memoryEntry, len(snapshot))
	for _, e := range snapshot {
		if _, dup := m.entries[e.ID]; !dup {
			m.order = append(m.order, e.ID)
		}
		m.entries[e.ID] = e
	}
	return nil
}

// matches reports whether every filter key equals the metadata value. Numbers
// compare by value regardless of their Go type.
func matches(meta map[string]interface{}, filter Filter) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

func equalValues(a, b interface{}) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

var _ Client = (*MemoryStore)(nil)
var _ Counter = (*MemoryStore)(nil)
