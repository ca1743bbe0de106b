// Package chunking splits extracted document text into bounded chunks with
// absolute positions and section metadata.
package chunking

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/inqdoc/internal/models"
)

// Strategy names.
const (
	NameSlidingWindow = "sliding-window"
	NameSemantic      = "semantic"
	NameRecursive     = "recursive"
)

// Default sizes, in bytes of text.
const (
	DefaultMaxChunkSize     = 1000
	DefaultTargetChunkSize  = 500
	DefaultMinChunkSize     = 100
	DefaultSlidingOverlap   = 200
	DefaultSemanticOverlap  = 50
	DefaultSectionSeparator = "\n\n"
	DefaultHeadingFormat    = "## %s\n\n"
)

// Chunker splits a document into chunks.
type Chunker interface {
	Name() string
	CreateChunks(documentID, text string, metadata *models.DocumentMetadata, sections []*models.DocumentSection) (*models.ChunkingResult, error)
}

// Options are shared by every strategy; strategies ignore what they do not use.
type Options struct {
	MaxChunkSize    int
	TargetChunkSize int
	// MinChunkSize is only checked against TargetChunkSize; no strategy merges
	// small chunks.
	MinChunkSize               int
	ChunkOverlap               int
	RespectSentenceBoundaries  bool
	RespectParagraphBoundaries bool
	// RespectSectionBoundaries and IncludeSectionTitles gate the semantic
	// section breaks and headings below; both flags of a pair must be set.
	RespectSectionBoundaries bool
	IncludeSectionTitles     bool
	SectionSeparator         string

	// Semantic only.
	NewChunkOnSectionBoundary bool
	IncludeSectionHeadings    bool
	HeadingFormat             string
	PreferCompleteSentences   bool
}

// DefaultOptions returns the shared defaults with the given overlap.
func DefaultOptions(overlap int) Options {
	return Options{
		MaxChunkSize:               DefaultMaxChunkSize,
		TargetChunkSize:            DefaultTargetChunkSize,
		MinChunkSize:               DefaultMinChunkSize,
		ChunkOverlap:               overlap,
		RespectSentenceBoundaries:  true,
		RespectParagraphBoundaries: true,
		RespectSectionBoundaries:   true,
		IncludeSectionTitles:       true,
		SectionSeparator:           DefaultSectionSeparator,
		NewChunkOnSectionBoundary:  true,
		IncludeSectionHeadings:     true,
		HeadingFormat:              DefaultHeadingFormat,
		PreferCompleteSentences:    true,
	}
}

func (o Options) breakAtSections() bool {
	return o.RespectSectionBoundaries && o.NewChunkOnSectionBoundary
}

func (o Options) sectionHeadings() bool {
	return o.IncludeSectionTitles && o.IncludeSectionHeadings
}

// Validate checks the size relationships.
func (o Options) Validate() error {
	var errs []error
	if o.MaxChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("max chunk size must be positive, got %d", o.MaxChunkSize))
	}
	if o.ChunkOverlap < 0 || (o.MaxChunkSize > 0 && o.ChunkOverlap >= o.MaxChunkSize) {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0,%d), got %d", o.MaxChunkSize, o.ChunkOverlap))
	}
	if o.MinChunkSize < 0 || o.MinChunkSize > o.TargetChunkSize {
		errs = append(errs, fmt.Errorf("min chunk size %d exceeds target %d", o.MinChunkSize, o.TargetChunkSize))
	}
	if o.TargetChunkSize > o.MaxChunkSize {
		errs = append(errs, fmt.Errorf("target chunk size %d exceeds max %d", o.TargetChunkSize, o.MaxChunkSize))
	}
	return errors.Join(errs...)
}

// Option adjusts Options.
type Option func(*Options)

// WithMaxChunkSize sets the hard chunk size limit.
func WithMaxChunkSize(n int) Option {
	return func(o *Options) { o.MaxChunkSize = n }
}

// WithTargetChunkSize sets the preferred chunk size.
func WithTargetChunkSize(n int) Option {
	return func(o *Options) { o.TargetChunkSize = n }
}

// WithMinChunkSize sets the minimum chunk size.
func WithMinChunkSize(n int) Option {
	return func(o *Options) { o.MinChunkSize = n }
}

// WithChunkOverlap sets the overlap between consecutive windows.
func WithChunkOverlap(n int) Option {
	return func(o *Options) { o.ChunkOverlap = n }
}

// WithParagraphBoundaries toggles paragraph splitting.
func WithParagraphBoundaries(on bool) Option {
	return func(o *Options) { o.RespectParagraphBoundaries = on }
}

// WithSentenceBoundaries toggles sentence-aware splitting of oversized paragraphs.
func WithSentenceBoundaries(on bool) Option {
	return func(o *Options) { o.RespectSentenceBoundaries = on }
}

// WithSectionBoundaries toggles the shared section-boundary switch.
func WithSectionBoundaries(on bool) Option {
	return func(o *Options) { o.RespectSectionBoundaries = on }
}

// WithSectionTitles toggles the shared section-title switch.
func WithSectionTitles(on bool) Option {
	return func(o *Options) { o.IncludeSectionTitles = on }
}

// WithNewChunkOnSectionBoundary keeps chunks from straddling sections.
func WithNewChunkOnSectionBoundary(on bool) Option {
	return func(o *Options) { o.NewChunkOnSectionBoundary = on }
}

// WithSectionHeadings toggles heading lines at the top of section chunks.
func WithSectionHeadings(on bool) Option {
	return func(o *Options) { o.IncludeSectionHeadings = on }
}

// WithPreferCompleteSentences toggles sentence-level breaks in the semantic strategy.
func WithPreferCompleteSentences(on bool) Option {
	return func(o *Options) { o.PreferCompleteSentences = on }
}

func buildOptions(overlap int, opts []Option) (Options, error) {
	o := DefaultOptions(overlap)
	for _, opt := range opts {
		opt(&o)
	}
	if o.SectionSeparator == "" {
		o.SectionSeparator = DefaultSectionSeparator
	}
	if o.HeadingFormat == "" {
		o.HeadingFormat = DefaultHeadingFormat
	}
	// Untouched defaults scale down with a small max.
	if o.TargetChunkSize == DefaultTargetChunkSize && o.MaxChunkSize > 0 && o.MaxChunkSize < DefaultTargetChunkSize {
		o.TargetChunkSize = o.MaxChunkSize / 2
	}
	if o.MinChunkSize == DefaultMinChunkSize && o.MinChunkSize > o.TargetChunkSize {
		o.MinChunkSize = o.TargetChunkSize / 5
	}
	if err := o.Validate(); err != nil {
		return o, fmt.Errorf("invalid chunking options: %w", err)
	}
	return o, nil
}

// documentMetadata is copied into every chunk's metadata map.
func documentMetadata(meta *models.DocumentMetadata) map[string]interface{} {
	out := make(map[string]interface{})
	if meta == nil {
		return out
	}
	if meta.Title != "" {
		out[models.MetaDocumentTitle] = meta.Title
	}
	if meta.Author != "" {
		out[models.MetaDocumentAuthor] = meta.Author
	}
	if meta.CreatedDate != nil {
		out[models.MetaDocumentCreatedDate] = meta.CreatedDate.UTC().Format(time.RFC3339)
	}
	return out
}

func newChunk(documentID string, index int, content string, start, end int, section *models.DocumentSection, base map[string]interface{}) *models.DocumentChunk {
	md := make(map[string]interface{}, len(base)+4)
	for k, v := range base {
		md[k] = v
	}
	md[models.MetaStartPosition] = start
	md[models.MetaEndPosition] = end
	c := &models.DocumentChunk{
		ID:            models.ChunkID(documentID, index),
		DocumentID:    documentID,
		Content:       content,
		Index:         index,
		StartPosition: start,
		EndPosition:   end,
		Metadata:      md,
	}
	if section != nil {
		c.Section = section.Ref()
		c.StartPage = section.StartPage
		c.EndPage = section.EndPage
		md[models.MetaSectionTitle] = section.Title
		md[models.MetaSectionLevel] = section.Level
	}
	return c
}
