package chunking

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/inqdoc/internal/models"
)

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	if r.Default() != NameSlidingWindow {
		t.Errorf("default = %q", r.Default())
	}
	if want := []string{NameRecursive, NameSemantic, NameSlidingWindow}; !reflect.DeepEqual(r.Names(), want) {
		t.Errorf("names = %v, want %v", r.Names(), want)
	}

	c, err := r.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != NameSlidingWindow {
		t.Errorf("empty name resolved to %q", c.Name())
	}

	c, err = r.Get(NameSemantic)
	if err != nil {
		t.Fatal(err)
	}
	sem, ok := c.(*Semantic)
	if !ok {
		t.Fatalf("semantic resolved to %T", c)
	}
	if sem.Options().ChunkOverlap != DefaultSemanticOverlap {
		t.Errorf("semantic overlap = %d", sem.Options().ChunkOverlap)
	}
}

func TestRegistry_optionsApplyToEveryStrategy(t *testing.T) {
	r := NewDefaultRegistry(WithMaxChunkSize(300), WithChunkOverlap(30))
	c, err := r.Get(NameSlidingWindow)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.(*SlidingWindow).Options().MaxChunkSize; got != 300 {
		t.Errorf("sliding max = %d", got)
	}

	c, err = r.Get(NameSemantic)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.(*Semantic).Options().ChunkOverlap; got != 30 {
		t.Errorf("semantic overlap = %d", got)
	}
}

func TestRegistry_unknown(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Get("markdown")
	var nie *models.NoImplementationError
	if !errors.As(err, &nie) {
		t.Fatalf("expected NoImplementationError, got %v", err)
	}
	if nie.Name != "markdown" || nie.Kind != "chunker" {
		t.Errorf("error = %+v", nie)
	}

	if err := r.SetDefault("markdown"); err == nil {
		t.Error("SetDefault accepted an unknown chunker")
	}
	if r.Default() != NameSlidingWindow {
		t.Errorf("default changed to %q", r.Default())
	}
}

func TestRegistry_noDefault(t *testing.T) {
	_, err := NewRegistry().Get("")
	var nie *models.NoImplementationError
	if !errors.As(err, &nie) {
		t.Fatalf("expected NoImplementationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "no default chunker") {
		t.Errorf("error = %v", err)
	}
}

type upperChunker struct{}

func (upperChunker) Name() string { return "upper" }

func (upperChunker) CreateChunks(documentID, text string, _ *models.DocumentMetadata, _ []*models.DocumentSection) (*models.ChunkingResult, error) {
	return models.NewChunkingResult([]*models.DocumentChunk{{
		ID: models.ChunkID(documentID, 0), DocumentID: documentID, Content: strings.ToUpper(text), EndPosition: len(text),
	}}), nil
}

func TestRegistry_customDefault(t *testing.T) {
	r := NewDefaultRegistry()
	r.Register("upper", func() (Chunker, error) { return upperChunker{}, nil })
	if err := r.SetDefault("upper"); err != nil {
		t.Fatal(err)
	}
	c, err := r.Get("")
	if err != nil {
		t.Fatal(err)
	}
	res := createChunks(t, c, "abc", nil, nil)
	if res.Chunks[0].Content != "ABC" {
		t.Errorf("content = %q", res.Chunks[0].Content)
	}
}

func TestRegistry_invalidOptionsSurfaceOnGet(t *testing.T) {
	r := NewDefaultRegistry(WithChunkOverlap(5000))
	if _, err := r.Get(NameSlidingWindow); err == nil {
		t.Error("expected invalid options error")
	}
}

func TestRecursive(t *testing.T) {
	c, err := NewRecursive(WithMaxChunkSize(120), WithChunkOverlap(20))
	if err != nil {
		t.Fatal(err)
	}
	var paras []string
	for i := 0; i < 6; i++ {
		paras = append(paras, strings.Repeat("recursive splitting keeps words whole ", 2))
	}
	text := strings.Join(paras, "\n\n")

	res, err := c.CreateChunks("rec", text, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) == 0 {
		t.Fatal("no chunks")
	}
	requireContiguous(t, "rec", res)
	if res.Chunks[0].StartPosition != 0 {
		t.Errorf("first start = %d", res.Chunks[0].StartPosition)
	}
	for _, ch := range res.Chunks {
		if len(ch.Content) > 120 {
			t.Errorf("chunk %d has %d bytes", ch.Index, len(ch.Content))
		}
		if strings.TrimSpace(ch.Content) == "" {
			t.Errorf("chunk %d is blank", ch.Index)
		}
	}
}
