package pipeline

import (
	"context"

	"github.com/hyperjump/inqdoc/internal/vectorstore"
)

// StoreStatus describes one registered vector store.
type StoreStatus struct {
	Name      string `json:"name"`
	Default   bool   `json:"default"`
	Available bool   `json:"available"`
	Chunks    *int64 `json:"chunks,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Status summarizes the service for the status command and the health endpoint.
type Status struct {
	Documents           int64         `json:"documents"`
	Chunkers            []string      `json:"chunkers"`
	DefaultChunker      string        `json:"default_chunker"`
	EmbeddingDimensions int           `json:"embedding_dimensions"`
	VectorStores        []StoreStatus `json:"vector_stores"`
	CompletionProviders []string      `json:"completion_providers"`
	StorageBytes        int64         `json:"storage_bytes,omitempty"`
}

// Status checks every registered vector store. Stores that cannot be created or
// reached are reported, not returned as errors.
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		Chunkers:            p.Chunkers.Names(),
		DefaultChunker:      p.Chunkers.Default(),
		CompletionProviders: p.Gateway.Providers(),
	}
	if p.Embedder != nil {
		st.EmbeddingDimensions = p.Embedder.Dimensions()
	}
	if p.Ledger != nil {
		n, err := p.Ledger.CountIndexedDocuments(ctx)
		if err != nil {
			return nil, err
		}
		st.Documents = n
	}
	if usage, ok := p.Documents.(interface{ DiskUsage() (int64, error) }); ok {
		if n, err := usage.DiskUsage(); err == nil {
			st.StorageBytes = n
		}
	}

	def := p.Stores.Default()
	for _, name := range p.Stores.Names() {
		s := StoreStatus{Name: name, Default: name == def}
		client, err := p.Stores.Get(name)
		if err != nil {
			s.Error = err.Error()
			st.VectorStores = append(st.VectorStores, s)
			continue
		}
		s.Available = client.IsAvailable(ctx)
		if c, ok := client.(vectorstore.Counter); ok && s.Available {
			if n, err := c.Count(ctx); err == nil {
				s.Chunks = &n
			}
		}
		st.VectorStores = append(st.VectorStores, s)
	}
	return st, nil
}
