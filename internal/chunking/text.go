package chunking

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// span is a half-open byte range [start, end) of the source text.
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t\f\v]*\n`)
	// Sentence ends: terminal punctuation, optional closing quotes or brackets, whitespace.
	// A split happens only when the next rune is upper case, so "Mr. Smith" splits too.
	sentenceEnd = regexp.MustCompile(`[.!?]+["'\)\]]*\s+`)

	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// Preprocess normalizes extracted text before chunking: LF line endings, no NUL
// bytes, single spaces, no trailing spaces and at most one blank line between
// paragraphs.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = horizontalSpace.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// trimSpan shrinks s past leading and trailing whitespace of text.
func trimSpan(text string, s span) span {
	for s.start < s.end {
		r, size := utf8.DecodeRuneInString(text[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.start += size
	}
	for s.end > s.start {
		r, size := utf8.DecodeLastRuneInString(text[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.end -= size
	}
	return s
}

// paragraphSpans returns the non-blank paragraphs of text, split on blank lines.
func paragraphSpans(text string) []span {
	var out []span
	last := 0
	for _, m := range paragraphBreak.FindAllStringIndex(text, -1) {
		if p := trimSpan(text, span{last, m[0]}); p.len() > 0 {
			out = append(out, p)
		}
		last = m[1]
	}
	if p := trimSpan(text, span{last, len(text)}); p.len() > 0 {
		out = append(out, p)
	}
	return out
}

// sentenceSpans splits s into sentences using the punctuation-then-capital heuristic.
func sentenceSpans(text string, s span) []span {
	seg := text[s.start:s.end]
	var out []span
	last := 0
	for _, m := range sentenceEnd.FindAllStringIndex(seg, -1) {
		next, _ := utf8.DecodeRuneInString(seg[m[1]:])
		if !unicode.IsUpper(next) {
			continue
		}
		if p := trimSpan(text, span{s.start + last, s.start + m[1]}); p.len() > 0 {
			out = append(out, p)
		}
		last = m[1]
	}
	if p := trimSpan(text, span{s.start + last, s.end}); p.len() > 0 {
		out = append(out, p)
	}
	return out
}

// splitAt cuts spans at each boundary strictly inside them.
func splitAt(text string, spans []span, boundaries []int) []span {
	if len(boundaries) == 0 {
		return spans
	}
	sorted := append([]int(nil), boundaries...)
	sort.Ints(sorted)
	var out []span
	for _, s := range spans {
		start := s.start
		for _, b := range sorted {
			if b <= start || b >= s.end {
				continue
			}
			if p := trimSpan(text, span{start, b}); p.len() > 0 {
				out = append(out, p)
			}
			start = b
		}
		if p := trimSpan(text, span{start, s.end}); p.len() > 0 {
			out = append(out, p)
		}
	}
	return out
}

// alignRune moves i back to the start of the rune containing it.
func alignRune(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// windows slides a window of size over s, advancing by step. With fold, a trailing
// remainder shorter than size/3 is merged into the last window instead of being emitted.
func windows(text string, s span, size, step int, fold bool) []span {
	if s.len() <= size {
		return []span{s}
	}
	if step <= 0 {
		step = 1
	}
	var out []span
	for start := s.start; start < s.end; {
		end := start + size
		if end >= s.end {
			end = s.end
		} else if fold && s.end-end < size/3 {
			end = s.end
		} else {
			end = alignRune(text, end)
		}
		if end <= start {
			end = s.end
		}
		out = append(out, span{start, end})
		if end >= s.end {
			break
		}
		next := alignRune(text, start+step)
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
