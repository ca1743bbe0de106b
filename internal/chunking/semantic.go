package chunking

import (
	"fmt"
	"strings"

	"github.com/hyperjump/inqdoc/internal/models"
)

// Semantic packs whole paragraphs into chunks, closing chunks at section
// boundaries and preferring sentence breaks once a chunk reaches the target size.
type Semantic struct {
	opts Options
}

var _ Chunker = (*Semantic)(nil)

// NewSemantic creates the semantic strategy (overlap 50 by default, unused by packing).
func NewSemantic(opts ...Option) (*Semantic, error) {
	o, err := buildOptions(DefaultSemanticOverlap, opts)
	if err != nil {
		return nil, err
	}
	return &Semantic{opts: o}, nil
}

// Name returns "semantic".
func (c *Semantic) Name() string { return NameSemantic }

// Options returns the effective options.
func (c *Semantic) Options() Options { return c.opts }

// pending is the chunk being assembled.
type pending struct {
	heading string
	parts   []span
	size    int
	section *models.DocumentSection
}

func (p *pending) empty() bool { return len(p.parts) == 0 }

func (p *pending) joiner(text, sep string, next span) string {
	return joinGap(text, sep, p.parts[len(p.parts)-1], next)
}

// joinGap is the text placed between two parts: the original gap when both sit in
// the same paragraph, sep otherwise.
func joinGap(text, sep string, prev, next span) string {
	if next.start < prev.end {
		return sep
	}
	gap := text[prev.end:next.start]
	if paragraphBreak.MatchString(gap) {
		return sep
	}
	return gap
}

func (p *pending) content(text, sep string) string {
	var b strings.Builder
	b.WriteString(p.heading)
	for i, s := range p.parts {
		if i > 0 {
			b.WriteString(joinGap(text, sep, p.parts[i-1], s))
		}
		b.WriteString(text[s.start:s.end])
	}
	return b.String()
}

// CreateChunks walks paragraphs in order and emits packed chunks.
func (c *Semantic) CreateChunks(documentID, text string, metadata *models.DocumentMetadata, sections []*models.DocumentSection) (*models.ChunkingResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.NewChunkingResult(nil), nil
	}

	paragraphs := paragraphSpans(text)
	if !c.opts.RespectParagraphBoundaries {
		paragraphs = []span{trimSpan(text, span{0, len(text)})}
	}
	if c.opts.breakAtSections() && len(sections) > 0 {
		paragraphs = splitAt(text, paragraphs, sectionBoundaries(sections))
	}

	var (
		sep     = c.opts.SectionSeparator
		maxSize = c.opts.MaxChunkSize
		base    = documentMetadata(metadata)
		chunks  []*models.DocumentChunk
		cur     = &pending{}
		current *models.DocumentSection
	)

	fits := func(s span) bool {
		if cur.empty() {
			return len(c.heading(current))+s.len() <= maxSize
		}
		return cur.size+len(cur.joiner(text, sep, s))+s.len() <= maxSize
	}
	flush := func() {
		if cur.empty() {
			return
		}
		start, end := cur.parts[0].start, cur.parts[len(cur.parts)-1].end
		chunks = append(chunks, newChunk(documentID, len(chunks), cur.content(text, sep), start, end, cur.section, base))
		cur = &pending{}
	}
	add := func(s span) {
		if cur.empty() {
			cur.section = current
			cur.heading = c.heading(current)
			cur.size = len(cur.heading)
		} else {
			cur.size += len(cur.joiner(text, sep, s))
		}
		cur.parts = append(cur.parts, s)
		cur.size += s.len()
	}
	// addSplit handles a piece that cannot join the current chunk whole.
	addSplit := func(p span) {
		pieces := []span{p}
		if c.opts.RespectSentenceBoundaries || c.opts.PreferCompleteSentences {
			pieces = sentenceSpans(text, p)
		}
		for _, s := range pieces {
			if !cur.empty() && !fits(s) {
				flush()
			}
			budget := maxSize - len(c.heading(current))
			if s.len() <= budget || budget <= 0 {
				add(s)
				continue
			}
			for _, w := range windows(text, s, budget, budget, false) {
				if !cur.empty() {
					flush()
				}
				add(w)
			}
		}
	}

	for _, p := range paragraphs {
		if len(sections) > 0 {
			sec := models.FindDeepestSection(sections, p.start)
			if sec != current {
				if c.opts.breakAtSections() {
					flush()
				}
				current = sec
			}
		}

		switch {
		case fits(p):
			add(p)
		case cur.empty():
			addSplit(p)
		case c.opts.PreferCompleteSentences && cur.size >= c.opts.TargetChunkSize:
			// Top up the closing chunk with leading sentences, carry the rest.
			sentences := sentenceSpans(text, p)
			i := 0
			for ; i < len(sentences) && fits(sentences[i]); i++ {
				add(sentences[i])
			}
			flush()
			for _, s := range sentences[i:] {
				if fits(s) {
					add(s)
				} else {
					addSplit(s)
				}
			}
		default:
			flush()
			if fits(p) {
				add(p)
			} else {
				addSplit(p)
			}
		}
	}
	flush()
	return models.NewChunkingResult(chunks), nil
}

func (c *Semantic) heading(s *models.DocumentSection) string {
	if !c.opts.sectionHeadings() || s == nil || strings.TrimSpace(s.Title) == "" {
		return ""
	}
	return fmt.Sprintf(c.opts.HeadingFormat, s.Title)
}

func sectionBoundaries(sections []*models.DocumentSection) []int {
	var out []int
	for _, s := range models.FlattenSections(sections) {
		out = append(out, s.StartPosition, s.EndPosition)
	}
	return out
}
