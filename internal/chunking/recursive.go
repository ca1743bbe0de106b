package chunking

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/hyperjump/inqdoc/internal/models"
)

// Recursive delegates splitting to langchaingo's recursive character splitter and
// recovers each piece's span by searching the source text from a moving cursor.
type Recursive struct {
	opts     Options
	splitter textsplitter.RecursiveCharacter
}

var _ Chunker = (*Recursive)(nil)

// NewRecursive creates the recursive strategy (overlap 200 by default).
func NewRecursive(opts ...Option) (*Recursive, error) {
	o, err := buildOptions(DefaultSlidingOverlap, opts)
	if err != nil {
		return nil, err
	}
	return &Recursive{
		opts: o,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(o.MaxChunkSize),
			textsplitter.WithChunkOverlap(o.ChunkOverlap),
		),
	}, nil
}

// Name returns "recursive".
func (c *Recursive) Name() string { return NameRecursive }

// CreateChunks splits text and maps pieces back to absolute positions.
func (c *Recursive) CreateChunks(documentID, text string, metadata *models.DocumentMetadata, sections []*models.DocumentSection) (*models.ChunkingResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.NewChunkingResult(nil), nil
	}
	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("recursive split: %w", err)
	}

	base := documentMetadata(metadata)
	var chunks []*models.DocumentChunk
	cursor := 0
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		start := locate(text, piece, cursor)
		end := start + len(piece)
		if end > len(text) {
			end = len(text)
		}
		var section *models.DocumentSection
		if len(sections) > 0 {
			section = models.FindDeepestSection(sections, start)
		}
		chunks = append(chunks, newChunk(documentID, len(chunks), piece, start, end, section, base))
		if start+1 > cursor {
			cursor = start + 1
		}
	}
	return models.NewChunkingResult(chunks), nil
}

// locate finds piece at or after cursor. Pieces rejoined by the splitter may not
// appear verbatim; those are placed at the cursor so positions stay non-decreasing.
func locate(text, piece string, cursor int) int {
	if cursor > len(text) {
		cursor = len(text)
	}
	if i := strings.Index(text[cursor:], piece); i >= 0 {
		return cursor + i
	}
	return cursor
}
