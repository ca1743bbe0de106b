package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var errBinaryContent = errors.New("content looks binary")

// extractText decodes content as UTF-8 and falls back to Latin-1.
func extractText(content []byte) (string, error) {
	return decodeText(content)
}

func decodeText(content []byte) (string, error) {
	if utf8.Valid(content) {
		return strings.TrimPrefix(string(content), "\uFEFF"), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", fmt.Errorf("decode as latin-1: %w", err)
	}
	return string(out), nil
}

// decodePlain is the best-effort decoder for unknown extensions. NUL bytes mark
// the content as binary rather than text in an unusual encoding.
func decodePlain(content []byte) (string, error) {
	if bytes.IndexByte(content, 0) >= 0 {
		return "", errBinaryContent
	}
	return decodeText(content)
}

// rawToString converts an arbitrary buffer to a string for the LLM fallback:
// UTF-8, else Latin-1, else empty.
func rawToString(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return ""
	}
	return string(out)
}
