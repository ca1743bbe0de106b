// Package extract turns raw document bytes into plain text, with an LLM fallback
// and a TTL cache in front of the document byte store.
package extract

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/inqdoc/internal/models"
)

// FormatFunc extracts plain text from the bytes of one document format.
type FormatFunc func(content []byte) (string, error)

// Extractor dispatches raw bytes to a format-specific extractor by file extension.
type Extractor struct {
	mu      sync.RWMutex
	formats map[string]FormatFunc
}

// NewExtractor returns an Extractor with every built-in format registered.
func NewExtractor() *Extractor {
	e := &Extractor{formats: make(map[string]FormatFunc)}
	e.Register(extractPDF, ".pdf")
	e.Register(extractDOCX, ".docx")
	e.Register(extractText, ".txt", ".md", ".markdown", ".rst", ".csv", ".json", ".log", "")
	e.Register(extractExcel, ".xlsx")
	e.Register(extractPPTX, ".pptx")
	e.Register(extractODP, ".odp")
	e.Register(extractODS, ".ods")
	e.Register(extractWithCat, ".odt", ".rtf")
	return e
}

// Register installs fn for the given extensions, replacing any previous extractor.
func (e *Extractor) Register(fn FormatFunc, exts ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ext := range exts {
		e.formats[strings.ToLower(ext)] = fn
	}
}

// SupportedExtensions returns the registered extensions in sorted order.
func (e *Extractor) SupportedExtensions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exts := make([]string, 0, len(e.formats))
	for ext := range e.formats {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// ExtractBytes extracts text from content based on ext, which includes the leading dot.
// Unknown extensions are decoded as plain text; content that cannot be decoded
// yields an UnsupportedFormatError.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	e.mu.RLock()
	fn, ok := e.formats[ext]
	e.mu.RUnlock()
	if ok {
		return fn(content)
	}
	text, err := decodePlain(content)
	if err != nil {
		return "", &models.UnsupportedFormatError{Extension: ext}
	}
	return text, nil
}

// ExtensionOf returns the lower-cased extension of a storage key.
func ExtensionOf(storageKey string) string {
	base := storageKey
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	return strings.ToLower(filepath.Ext(base))
}
