package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/inqdoc/internal/completion"
	"github.com/hyperjump/inqdoc/internal/config"
	"github.com/hyperjump/inqdoc/internal/embedding"
	"github.com/hyperjump/inqdoc/internal/extract"
	"github.com/hyperjump/inqdoc/internal/fileid"
	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/internal/storage"
	"github.com/hyperjump/inqdoc/internal/vectorstore"
)

// recorder is a completion provider that records prompts.
type recorder struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Complete(_ context.Context, prompt string, _ completion.CallOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	return r.answer, r.err
}

const archiveStore = "archive"

type fixture struct {
	p       *Pipeline
	disk    *storage.DiskStore
	ledger  *storage.SQLiteStorage
	mem     *vectorstore.MemoryStore
	archive *vectorstore.MemoryStore
	llm     *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	disk, err := storage.NewDiskStore(filepath.Join(dir, "docs"))
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := storage.NewSQLiteStorage(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}

	emb := embedding.NewMockEmbedder(32)
	mem, err := vectorstore.NewMemoryStore("", vectorstore.WithEmbedder(emb))
	if err != nil {
		t.Fatal(err)
	}
	archive, err := vectorstore.NewMemoryStore("", vectorstore.WithEmbedder(emb))
	if err != nil {
		t.Fatal(err)
	}
	stores := vectorstore.NewRegistry()
	stores.Register(vectorstore.NameMemory, func() (vectorstore.Client, error) { return mem, nil })
	stores.Register(archiveStore, func() (vectorstore.Client, error) { return archive, nil })

	llm := &recorder{answer: "The budget grew."}
	gw := completion.NewGateway([]completion.Provider{llm})

	p := NewWithComponents(Components{
		Documents: disk,
		Ledger:    ledger,
		Extractor: extract.NewService(disk, extract.WithFallback(gw)),
		Embedder:  emb,
		Stores:    stores,
		Gateway:   gw,
	}, DefaultSettings(), nil)
	t.Cleanup(func() { _ = p.Close(); _ = ledger.Close() })
	return &fixture{p: p, disk: disk, ledger: ledger, mem: mem, archive: archive, llm: llm}
}

func report(paragraphs int) string {
	var sb strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&sb, "Paragraph %d discusses the quarterly budget and the hiring plan in detail. ", i)
		sb.WriteString("Spending stayed within limits while revenue grew steadily across regions.\n\n")
	}
	return sb.String()
}

func countOf(t *testing.T, s *vectorstore.MemoryStore) int64 {
	t.Helper()
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	return countOf(t, f.mem)
}

func (f *fixture) put(t *testing.T, key, text string) {
	t.Helper()
	if _, err := f.p.PutDocument(context.Background(), key, []byte(text)); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func (f *fixture) ingest(t *testing.T, key string, opts IngestOptions) *models.IngestResult {
	t.Helper()
	res, err := f.p.IngestDocument(context.Background(), key, opts)
	if err != nil {
		t.Fatalf("ingest %s: %v", key, err)
	}
	return res
}

func TestIngestDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(t, "reports/q1.txt", report(20))

	res := f.ingest(t, "/reports/q1.txt", IngestOptions{
		Metadata: &models.DocumentMetadata{Title: "Q1"},
	})
	if res.DocumentID != fileid.DocumentID("reports/q1.txt") || res.StorageKey != "reports/q1.txt" {
		t.Errorf("ids = %s, %s", res.DocumentID, res.StorageKey)
	}
	if res.VectorStore != vectorstore.NameMemory {
		t.Errorf("store = %s", res.VectorStore)
	}
	if res.ChunkCount <= 1 || res.Skipped {
		t.Errorf("result = %+v", res)
	}
	if got := f.count(t); got != int64(res.ChunkCount) {
		t.Errorf("store holds %d chunks, want %d", got, res.ChunkCount)
	}

	row, err := f.ledger.GetIndexedDocument(ctx, res.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if row.Title != "Q1" || row.ChunkCount != res.ChunkCount || row.ContentHash == "" {
		t.Errorf("ledger row = %+v", row)
	}

	hits, err := f.mem.Query(ctx, make([]float32, 32), vectorstore.QueryOptions{
		TopK:   1,
		Filter: vectorstore.Filter{models.MetaDocumentID: res.DocumentID, models.MetaChunkIndex: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits for chunk 0", len(hits))
	}
	if hits[0].Metadata[models.MetaStorageKey] != "reports/q1.txt" || hits[0].Metadata[models.MetaDocumentTitle] != "Q1" {
		t.Errorf("metadata = %v", hits[0].Metadata)
	}
}

func TestIngestDocument_unchangedIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a.txt", report(10))

	first := f.ingest(t, "a.txt", IngestOptions{})
	again := f.ingest(t, "a.txt", IngestOptions{})
	if !again.Skipped || again.ChunkCount != first.ChunkCount {
		t.Errorf("second ingest = %+v", again)
	}

	forced := f.ingest(t, "a.txt", IngestOptions{Force: true})
	if forced.Skipped {
		t.Error("forced ingest was skipped")
	}
	if got := f.count(t); got != int64(first.ChunkCount) {
		t.Errorf("reindex left %d chunks, want %d", got, first.ChunkCount)
	}

	if other := f.ingest(t, "a.txt", IngestOptions{Chunker: "semantic"}); other.Skipped {
		t.Error("a different chunker should reindex")
	}
}

func TestIngestDocument_replacesChunksWhenContentChanges(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a.txt", report(30))
	big := f.ingest(t, "a.txt", IngestOptions{})

	f.put(t, "a.txt", report(3))
	small := f.ingest(t, "a.txt", IngestOptions{})
	if small.ChunkCount >= big.ChunkCount {
		t.Fatalf("chunks %d -> %d, want fewer", big.ChunkCount, small.ChunkCount)
	}
	if got := f.count(t); got != int64(small.ChunkCount) {
		t.Errorf("store holds %d chunks, want %d", got, small.ChunkCount)
	}
}

func TestIngestDocument_movingStoresRemovesOldChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(t, "a.txt", report(6))
	f.put(t, "b.txt", report(6))
	f.ingest(t, "a.txt", IngestOptions{})
	b := f.ingest(t, "b.txt", IngestOptions{})

	moved := f.ingest(t, "a.txt", IngestOptions{VectorStore: archiveStore})
	if moved.Skipped || moved.VectorStore != archiveStore {
		t.Fatalf("move result = %+v", moved)
	}
	if got := f.count(t); got != int64(b.ChunkCount) {
		t.Errorf("default store holds %d chunks, want only b.txt's %d", got, b.ChunkCount)
	}
	if got := countOf(t, f.archive); got != int64(moved.ChunkCount) {
		t.Errorf("archive holds %d chunks, want %d", got, moved.ChunkCount)
	}
	row, err := f.ledger.GetIndexedDocument(ctx, moved.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if row.VectorStore != archiveStore {
		t.Errorf("ledger store = %s", row.VectorStore)
	}

	if err := f.p.DeleteDocument(ctx, moved.DocumentID); err != nil {
		t.Fatal(err)
	}
	if got := countOf(t, f.archive); got != 0 {
		t.Errorf("archive holds %d chunks after delete", got)
	}
}

func TestIngestDocument_fallbackRecoversTinyFile(t *testing.T) {
	f := newFixture(t)
	f.llm.answer = "Recovered text from a tiny file that the direct extractor could not read well."
	f.put(t, "tiny.txt", "abc")

	res := f.ingest(t, "tiny.txt", IngestOptions{})
	if res.ChunkCount != 1 {
		t.Errorf("chunks = %d", res.ChunkCount)
	}
	if len(f.llm.prompts) != 1 || !strings.Contains(f.llm.prompts[0], "tiny.txt") {
		t.Errorf("fallback prompts = %q", f.llm.prompts)
	}
}

func TestIngestDocument_errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(t, "a.txt", report(2))

	var nie *models.NoImplementationError
	if _, err := f.p.IngestDocument(ctx, "a.txt", IngestOptions{Chunker: "nope"}); !errors.As(err, &nie) {
		t.Errorf("unknown chunker: %v", err)
	}
	if _, err := f.p.IngestDocument(ctx, "a.txt", IngestOptions{VectorStore: "pinecone"}); !errors.As(err, &nie) {
		t.Errorf("unknown store: %v", err)
	}
	if _, err := f.p.IngestDocument(ctx, "missing.txt", IngestOptions{}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing document: %v", err)
	}
	if got := f.count(t); got != 0 {
		t.Errorf("store holds %d chunks", got)
	}
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(t, "a.txt", report(5))
	f.put(t, "b.txt", report(5))
	a := f.ingest(t, "a.txt", IngestOptions{})
	b := f.ingest(t, "b.txt", IngestOptions{})

	if err := f.p.DeleteDocument(ctx, a.DocumentID); err != nil {
		t.Fatal(err)
	}
	if got := f.count(t); got != int64(b.ChunkCount) {
		t.Errorf("store holds %d chunks, want %d", got, b.ChunkCount)
	}
	if _, err := f.ledger.GetIndexedDocument(ctx, a.DocumentID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("ledger row survived: %v", err)
	}

	if err := f.p.DeleteStorageKey(ctx, "b.txt"); err != nil {
		t.Fatal(err)
	}
	if got := f.count(t); got != 0 {
		t.Errorf("store holds %d chunks", got)
	}

	// Unknown documents are a no-op.
	if err := f.p.DeleteDocument(ctx, "doc_0000000000000000"); err != nil {
		t.Errorf("unknown document: %v", err)
	}

	docs, err := f.p.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("ledger still lists %d documents", len(docs))
	}
}

func TestSearchAndAsk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(t, "r.txt", report(8))
	doc := f.ingest(t, "r.txt", IngestOptions{})

	req := &models.SearchRequest{Query: "quarterly budget", TopK: 3}
	results, err := f.p.Search(ctx, req.Query, f.p.SearchOptions(req))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || len(results) > 3 {
		t.Fatalf("got %d results", len(results))
	}
	for _, r := range results {
		if id, _ := r.DocumentID(); id != doc.DocumentID {
			t.Errorf("result from %s", id)
		}
		if r.KeywordScore <= 0 {
			t.Errorf("keyword score = %v", r.KeywordScore)
		}
	}

	question := "How did the budget change?"
	resp, err := f.p.Ask(ctx, question, f.p.AskOptions(&models.SearchRequest{Query: question}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "The budget grew." || len(resp.Sources) == 0 || resp.PromptTokens <= 0 {
		t.Errorf("response = %+v", resp)
	}
	if len(f.llm.prompts) != 1 {
		t.Fatalf("got %d prompts", len(f.llm.prompts))
	}
	for _, want := range []string{"Question: " + question, "quarterly budget"} {
		if !strings.Contains(f.llm.prompts[0], want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestAsk_budgetAndFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(t, "r.txt", report(8))
	f.ingest(t, "r.txt", IngestOptions{})

	opts := f.p.AskOptions(&models.SearchRequest{Query: "budget"})
	opts.Template = "{question}\n{context}"
	opts.MaxTokens = 18
	if _, err := f.p.Ask(ctx, "budget", opts); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.llm.prompts[0], "[No relevant context found or fits within token limits]") {
		t.Errorf("prompt = %q", f.llm.prompts[0])
	}

	f.llm.err = errors.New("503 unavailable")
	_, err := f.p.Ask(ctx, "budget", f.p.AskOptions(&models.SearchRequest{Query: "budget"}))
	if !errors.Is(err, models.ErrAllProvidersFailed) {
		t.Errorf("err = %v", err)
	}
}

func TestSearchOptions_clampsTopK(t *testing.T) {
	f := newFixture(t)
	if o := f.p.SearchOptions(&models.SearchRequest{Query: "q", TopK: 500}); o.TopK != f.p.Settings().MaxTopK {
		t.Errorf("topK = %d, want %d", o.TopK, f.p.Settings().MaxTopK)
	}
	if a := f.p.AskOptions(&models.SearchRequest{Query: "q"}); a.Search.TopK != f.p.Settings().ContextResults {
		t.Errorf("ask topK = %d, want %d", a.Search.TopK, f.p.Settings().ContextResults)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.Root = filepath.Join(dir, "docs")
	cfg.Storage.DatabasePath = filepath.Join(dir, "inqdoc.db")
	cfg.VectorStore.Memory.Path = filepath.Join(dir, "vectors.json")
	cfg.Embedding.Dimensions = 16
	return cfg
}

func TestNew_fromConfig(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	p, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.PutDocument(ctx, "notes/a.md", []byte("# Notes\n\n"+report(4))); err != nil {
		t.Fatal(err)
	}
	res, err := p.IngestDocument(ctx, "notes/a.md", IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}

	st, err := p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 1 || st.EmbeddingDimensions != 16 || st.DefaultChunker != "sliding-window" {
		t.Errorf("status = %+v", st)
	}
	if len(st.VectorStores) != 1 {
		t.Fatalf("got %d vector stores", len(st.VectorStores))
	}
	vs := st.VectorStores[0]
	if !vs.Available || vs.Chunks == nil || *vs.Chunks != int64(res.ChunkCount) {
		t.Errorf("vector store status = %+v", vs)
	}
	if st.StorageBytes <= 0 || len(st.CompletionProviders) != 0 {
		t.Errorf("storage = %d, providers = %v", st.StorageBytes, st.CompletionProviders)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	// The memory store snapshot and the ledger survive a restart.
	p, err = New(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	again, err := p.IngestDocument(ctx, "notes/a.md", IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped {
		t.Error("unchanged document was reindexed after restart")
	}
}

func TestNew_rejectsUnknownDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Default = "pinecone"
	_, err := New(context.Background(), cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "vector_store.default") {
		t.Errorf("unknown store: %v", err)
	}

	cfg.VectorStore.Default = "memory"
	cfg.Chunking.Strategy = "paragraphs"
	_, err = New(context.Background(), cfg, nil)
	var nie *models.NoImplementationError
	if !errors.As(err, &nie) {
		t.Errorf("unknown chunker: %v", err)
	}
}
