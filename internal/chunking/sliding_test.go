package chunking

import (
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/hyperjump/inqdoc/internal/models"
)

func requireContiguous(t *testing.T, docID string, res *models.ChunkingResult) {
	t.Helper()
	if res.ChunkCount != len(res.Chunks) {
		t.Fatalf("ChunkCount = %d, len(Chunks) = %d", res.ChunkCount, len(res.Chunks))
	}
	prevStart := -1
	total := 0
	for i, c := range res.Chunks {
		if c.Index != i || c.ID != models.ChunkID(docID, i) || c.DocumentID != docID {
			t.Errorf("chunk %d: index=%d id=%s doc=%s", i, c.Index, c.ID, c.DocumentID)
		}
		if c.StartPosition < prevStart {
			t.Errorf("chunk %d starts at %d, before %d", i, c.StartPosition, prevStart)
		}
		if c.StartPosition > c.EndPosition {
			t.Errorf("chunk %d span [%d,%d) is inverted", i, c.StartPosition, c.EndPosition)
		}
		prevStart = c.StartPosition
		total += len(c.Content)
	}
	if total != res.TotalCharacters {
		t.Errorf("TotalCharacters = %d, want %d", res.TotalCharacters, total)
	}
}

// requireCoverage checks every non-space byte of text lies inside some chunk span.
func requireCoverage(t *testing.T, text string, res *models.ChunkingResult) {
	t.Helper()
	covered := make([]bool, len(text))
	for _, c := range res.Chunks {
		for i := c.StartPosition; i < c.EndPosition; i++ {
			covered[i] = true
		}
	}
	for i, r := range text {
		if !unicode.IsSpace(r) && !covered[i] {
			t.Fatalf("byte %d (%q) not covered by any chunk", i, r)
		}
	}
}

func newSliding(t *testing.T, opts ...Option) *SlidingWindow {
	t.Helper()
	c, err := NewSlidingWindow(opts...)
	if err != nil {
		t.Fatalf("NewSlidingWindow: %v", err)
	}
	return c
}

func TestSlidingWindow_overlap(t *testing.T) {
	c := newSliding(t, WithMaxChunkSize(1000), WithChunkOverlap(200))
	text := strings.Repeat("abcdefghij", 250)

	res := createChunks(t, c, text, nil, nil)
	if len(res.Chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(res.Chunks))
	}
	want := [][2]int{{0, 1000}, {800, 1800}, {1600, 2500}}
	for i, ch := range res.Chunks {
		if ch.StartPosition != want[i][0] || ch.EndPosition != want[i][1] {
			t.Errorf("chunk %d = [%d,%d), want %v", i, ch.StartPosition, ch.EndPosition, want[i])
		}
		if ch.Content != text[ch.StartPosition:ch.EndPosition] {
			t.Errorf("chunk %d content does not match its span", i)
		}
	}
	requireContiguous(t, "doc", res)
	requireCoverage(t, text, res)
}

func TestSlidingWindow_foldsShortTail(t *testing.T) {
	res := createChunks(t, newSliding(t), strings.Repeat("x", 1250), nil, nil)
	if len(res.Chunks) != 1 || res.Chunks[0].EndPosition != 1250 {
		t.Fatalf("chunks = %d, want one ending at 1250", len(res.Chunks))
	}
}

func TestSlidingWindow_paragraphs(t *testing.T) {
	text := "First paragraph.\n\n  Second paragraph.\n \nThird."
	res, err := newSliding(t).CreateChunks("d", text, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"First paragraph.", "Second paragraph.", "Third."}
	if len(res.Chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(res.Chunks), len(want))
	}
	for i, w := range want {
		if res.Chunks[i].Content != w {
			t.Errorf("chunk %d = %q, want %q", i, res.Chunks[i].Content, w)
		}
	}
	if got := res.Chunks[1].StartPosition; got != strings.Index(text, "Second") {
		t.Errorf("second start = %d", got)
	}
	requireContiguous(t, "d", res)
	requireCoverage(t, text, res)
}

func TestSlidingWindow_noParagraphBoundaries(t *testing.T) {
	res := createChunks(t, newSliding(t, WithParagraphBoundaries(false)), "one\n\ntwo", nil, nil)
	if len(res.Chunks) != 1 || res.Chunks[0].Content != "one\n\ntwo" {
		t.Fatalf("chunks = %+v", res.Chunks)
	}
}

func TestSlidingWindow_coverageMixed(t *testing.T) {
	c := newSliding(t, WithMaxChunkSize(120), WithChunkOverlap(30))
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString(strings.Repeat("lorem ipsum dolor ", i+1))
		b.WriteString("\n\n")
	}
	text := b.String()

	res, err := c.CreateChunks("mix", text, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	requireContiguous(t, "mix", res)
	requireCoverage(t, text, res)
	for _, ch := range res.Chunks {
		if len(ch.Content) > 120+120/3 {
			t.Errorf("chunk %d has %d bytes", ch.Index, len(ch.Content))
		}
	}
}

func TestSlidingWindow_multibyte(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 40)
	res := createChunks(t, newSliding(t, WithMaxChunkSize(100), WithChunkOverlap(10)), text, nil, nil)
	for _, ch := range res.Chunks {
		if strings.ToValidUTF8(ch.Content, "?") != ch.Content {
			t.Errorf("chunk split a rune: %q", ch.Content)
		}
	}
	requireCoverage(t, text, res)
}

func TestSlidingWindow_sectionsAndMetadata(t *testing.T) {
	text := "Intro text.\n\nDetails start here.\n\nNested detail."
	nested := &models.DocumentSection{Title: "Nested", Level: 3, StartPosition: strings.Index(text, "Nested"), EndPosition: len(text)}
	sections := []*models.DocumentSection{
		{Title: "Intro", Level: 1, StartPosition: 0, EndPosition: 13},
		{Title: "Details", Level: 2, StartPosition: 13, EndPosition: len(text), Children: []*models.DocumentSection{nested}},
	}
	created := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	meta := &models.DocumentMetadata{Title: "Report", Author: "Ada", CreatedDate: &created}

	res := createChunks(t, newSliding(t), text, meta, sections)
	if len(res.Chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(res.Chunks))
	}
	for i, title := range []string{"Intro", "Details", "Nested"} {
		if got := res.Chunks[i].Section.Title; got != title {
			t.Errorf("chunk %d section = %q, want %q", i, got, title)
		}
	}
	if got := res.Chunks[2].Metadata[models.MetaSectionLevel]; got != 3 {
		t.Errorf("section level = %v", got)
	}
	md := res.Chunks[0].Metadata
	if md[models.MetaDocumentTitle] != "Report" || md[models.MetaDocumentAuthor] != "Ada" {
		t.Errorf("document metadata = %v", md)
	}
	if got := md[models.MetaDocumentCreatedDate]; got != "2023-05-01T12:00:00Z" {
		t.Errorf("created date = %v", got)
	}
	if got := res.Chunks[1].Metadata[models.MetaStartPosition]; got != res.Chunks[1].StartPosition {
		t.Errorf("start position metadata = %v", got)
	}
}

func TestCreateChunks_emptyInput(t *testing.T) {
	reg := NewDefaultRegistry()
	for _, name := range reg.Names() {
		c, err := reg.Get(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		for _, in := range []string{"", "   ", "\n\n\t"} {
			res, err := c.CreateChunks("d", in, nil, nil)
			if err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			if res.Chunks == nil || len(res.Chunks) != 0 {
				t.Errorf("%s: chunks = %v, want empty non-nil", name, res.Chunks)
			}
			if res.TotalCharacters != 0 || res.ChunkCount != 0 || res.AverageChunkSize != 0 {
				t.Errorf("%s: stats = %+v", name, res)
			}
		}
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"defaults", nil, false},
		{"zero max", []Option{WithMaxChunkSize(0)}, true},
		{"overlap equals max", []Option{WithMaxChunkSize(100), WithChunkOverlap(100)}, true},
		{"negative overlap", []Option{WithChunkOverlap(-1)}, true},
		{"target above max", []Option{WithTargetChunkSize(2000)}, true},
		{"min above target", []Option{WithMinChunkSize(600)}, true},
		{"small max scales defaults", []Option{WithMaxChunkSize(200), WithChunkOverlap(20)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSlidingWindow(tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
