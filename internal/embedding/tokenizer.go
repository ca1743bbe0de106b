package embedding

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Reserved ids of BERT uncased vocabularies, used when the vocabulary file lacks them.
const (
	unkID int64 = 100
	clsID int64 = 101
	sepID int64 = 102

	// hashed ids land in [firstHashedID, hashedVocabSize).
	firstHashedID   = 1000
	hashedVocabSize = 30522

	maxWordRunes     = 100
	defaultMaxTokens = 256
)

// Encoding is a padded model input of a fixed length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	// Length counts real tokens, [CLS] and [SEP] included.
	Length int
}

// Tokenizer turns text into model input.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
}

// WordPieceTokenizer does BERT uncased tokenization: lower-case, strip accents,
// split on whitespace and punctuation, then match each word greedily against the
// vocabulary using "##" continuation pieces. Without a vocabulary every word
// hashes to a single id.
type WordPieceTokenizer struct {
	vocab         map[string]int64
	unk, cls, sep int64
}

// NewHashTokenizer returns a tokenizer with no vocabulary.
func NewHashTokenizer() *WordPieceTokenizer {
	return &WordPieceTokenizer{unk: unkID, cls: clsID, sep: sepID}
}

// LoadWordPieceTokenizer reads a vocab.txt with one token per line; the line
// number is the token id.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := NewHashTokenizer()
	t.vocab = make(map[string]int64, hashedVocabSize)
	sc := bufio.NewScanner(f)
	var id int64
	for sc.Scan() {
		t.vocab[strings.TrimRight(sc.Text(), "\r")] = id
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	if len(t.vocab) == 0 {
		return nil, fmt.Errorf("vocabulary %s is empty", path)
	}
	for name, dst := range map[string]*int64{"[UNK]": &t.unk, "[CLS]": &t.cls, "[SEP]": &t.sep} {
		if v, ok := t.vocab[name]; ok {
			*dst = v
		}
	}
	return t, nil
}

// Encode tokenizes text into exactly maxTokens positions, truncating words that
// do not fit before [SEP].
func (t *WordPieceTokenizer) Encode(text string, maxTokens int) Encoding {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if maxTokens < 2 {
		maxTokens = 2
	}
	ids := make([]int64, 1, maxTokens)
	ids[0] = t.cls
words:
	for _, word := range basicTokenize(text) {
		for _, id := range t.wordPieces(word) {
			if len(ids) == maxTokens-1 {
				break words
			}
			ids = append(ids, id)
		}
	}
	ids = append(ids, t.sep)

	enc := Encoding{
		InputIDs:      make([]int64, maxTokens),
		AttentionMask: make([]int64, maxTokens),
		TokenTypeIDs:  make([]int64, maxTokens),
		Length:        len(ids),
	}
	copy(enc.InputIDs, ids)
	for i := range ids {
		enc.AttentionMask[i] = 1
	}
	return enc
}

func (t *WordPieceTokenizer) wordPieces(word string) []int64 {
	if t.vocab == nil {
		return []int64{hashedID(word)}
	}
	rs := []rune(word)
	if len(rs) > maxWordRunes {
		return []int64{t.unk}
	}
	var ids []int64
	for start := 0; start < len(rs); {
		end := len(rs)
		id := int64(-1)
		for ; end > start; end-- {
			piece := string(rs[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if v, ok := t.vocab[piece]; ok {
				id = v
				break
			}
		}
		if id < 0 {
			return []int64{t.unk}
		}
		ids = append(ids, id)
		start = end
	}
	return ids
}

func hashedID(word string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return firstHashedID + int64(h.Sum32()%(hashedVocabSize-firstHashedID))
}

// basicTokenize lower-cases and strips accents, then splits on whitespace and
// control characters. Punctuation and symbols become single-rune words.
func basicTokenize(text string) []string {
	lower := strings.ToLower(text)
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), lower)
	if err != nil {
		folded = lower
	}
	var (
		words []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r) || r == unicode.ReplacementChar:
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
