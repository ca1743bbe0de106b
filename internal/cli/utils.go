// Package cli formats inqdoc command output as text or JSON.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/internal/pipeline"
	"github.com/hyperjump/inqdoc/pkg/utils"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const snippetLen = 200

// ParseOutputFormat validates a --output value. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
	for i, r := range response.Results {
		writeResult(w, i+1, r)
	}
	return nil
}

func writeResult(w io.Writer, rank int, r *models.EnhancedSearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (Semantic: %.4f, Keyword: %.4f)\n",
		rank, r.Score, r.SemanticScore, r.KeywordScore)
	if id, ok := r.DocumentID(); ok {
		fmt.Fprintf(w, "Document: %s", id)
		if idx, ok := r.ChunkIndex(); ok {
			fmt.Fprintf(w, " #%d", idx)
		}
		fmt.Fprintln(w)
	}
	if key, ok := r.Metadata[models.MetaStorageKey].(string); ok && key != "" {
		fmt.Fprintf(w, "Source: %s\n", key)
	}
	if title, ok := r.Metadata[models.MetaDocumentTitle].(string); ok && title != "" {
		fmt.Fprintf(w, "Title: %s\n", title)
	}
	text := r.HighlightedContent
	if text == "" {
		text = r.Text
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(text, snippetLen))
}

// WriteAnswer writes an answer followed by its numbered sources.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(resp.Answer))
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, s := range resp.Sources {
			label, _ := s.Metadata[models.MetaStorageKey].(string)
			if label == "" {
				label = s.ID
			}
			fmt.Fprintf(w, "  [%d] %s (%.3f)\n", i+1, label, s.Score)
		}
	}
	fmt.Fprintf(w, "\n%d prompt tokens, %dms\n", resp.PromptTokens, resp.QueryTime)
	return nil
}

// WriteIngestResults writes one line per ingested document.
func WriteIngestResults(w io.Writer, results []*models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, results)
	}
	for _, r := range results {
		if r.Skipped {
			fmt.Fprintf(w, "%s  %s  unchanged (%d chunks)\n", r.DocumentID, r.StorageKey, r.ChunkCount)
			continue
		}
		fmt.Fprintf(w, "%s  %s  %d chunks via %s into %s in %dms\n",
			r.DocumentID, r.StorageKey, r.ChunkCount, r.Chunker, r.VectorStore, r.DurationMs)
	}
	return nil
}

// WriteDocuments writes the ledger rows as a table.
func WriteDocuments(w io.Writer, docs []*models.IndexedDocument, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.IndexedDocument{}
		}
		return WriteJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents indexed.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKEY\tCHUNKS\tCHUNKER\tSTORE\tINDEXED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			d.ID, d.StorageKey, d.ChunkCount, d.Chunker, d.VectorStore, d.IndexedAt.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}

// WriteStatus writes the service status.
func WriteStatus(w io.Writer, st *pipeline.Status, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, st)
	}
	fmt.Fprintf(w, "Documents:   %d\n", st.Documents)
	if st.StorageBytes > 0 {
		fmt.Fprintf(w, "Storage:     %s\n", FormatBytes(st.StorageBytes))
	}
	fmt.Fprintf(w, "Chunkers:    %s (default %s)\n", strings.Join(st.Chunkers, ", "), st.DefaultChunker)
	fmt.Fprintf(w, "Embeddings:  %d dimensions\n", st.EmbeddingDimensions)
	providers := "none"
	if len(st.CompletionProviders) > 0 {
		providers = strings.Join(st.CompletionProviders, " -> ")
	}
	fmt.Fprintf(w, "Completion:  %s\n", providers)
	fmt.Fprintln(w, "Vector stores:")
	for _, s := range st.VectorStores {
		state := "unavailable"
		switch {
		case s.Error != "":
			state = "error: " + s.Error
		case s.Available && s.Chunks != nil:
			state = fmt.Sprintf("available, %d chunks", *s.Chunks)
		case s.Available:
			state = "available"
		}
		marker := " "
		if s.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %-10s %s\n", marker, s.Name, state)
	}
	return nil
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
