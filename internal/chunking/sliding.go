package chunking

import (
	"strings"

	"github.com/hyperjump/inqdoc/internal/models"
)

// SlidingWindow emits each paragraph that fits as one chunk and slides an
// overlapping window over larger ones.
type SlidingWindow struct {
	opts Options
}

var _ Chunker = (*SlidingWindow)(nil)

// NewSlidingWindow creates the sliding-window strategy (overlap 200 by default).
func NewSlidingWindow(opts ...Option) (*SlidingWindow, error) {
	o, err := buildOptions(DefaultSlidingOverlap, opts)
	if err != nil {
		return nil, err
	}
	return &SlidingWindow{opts: o}, nil
}

// Name returns "sliding-window".
func (c *SlidingWindow) Name() string { return NameSlidingWindow }

// Options returns the effective options.
func (c *SlidingWindow) Options() Options { return c.opts }

// CreateChunks splits text into windows of at most MaxChunkSize (plus a folded tail).
func (c *SlidingWindow) CreateChunks(documentID, text string, metadata *models.DocumentMetadata, sections []*models.DocumentSection) (*models.ChunkingResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.NewChunkingResult(nil), nil
	}

	var paragraphs []span
	if c.opts.RespectParagraphBoundaries {
		paragraphs = paragraphSpans(text)
	} else {
		paragraphs = []span{trimSpan(text, span{0, len(text)})}
	}

	base := documentMetadata(metadata)
	step := c.opts.MaxChunkSize - c.opts.ChunkOverlap
	var chunks []*models.DocumentChunk
	for _, p := range paragraphs {
		for _, w := range windows(text, p, c.opts.MaxChunkSize, step, true) {
			var section *models.DocumentSection
			if len(sections) > 0 {
				section = models.FindDeepestSection(sections, w.start)
			}
			chunks = append(chunks, newChunk(documentID, len(chunks), text[w.start:w.end], w.start, w.end, section, base))
		}
	}
	return models.NewChunkingResult(chunks), nil
}
