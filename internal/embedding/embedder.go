// Package embedding turns text into vectors: local ONNX models, hosted providers,
// caching wrappers, and bounded concurrent fan-out.
package embedding

import (
	"context"
	"errors"

	"github.com/hyperjump/inqdoc/internal/models"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

var errEmptyVector = errors.New("embedder returned an empty vector")

// Generate embeds text and reports any failure, including an empty vector,
// as *models.EmbeddingFailureError.
func Generate(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vec, err := e.Embed(ctx, text)
	if err == nil && len(vec) == 0 {
		err = errEmptyVector
	}
	if err != nil {
		var efe *models.EmbeddingFailureError
		if errors.As(err, &efe) {
			return nil, err
		}
		return nil, &models.EmbeddingFailureError{Text: text, Cause: err}
	}
	return vec, nil
}

// embedEach calls Embed for every text in order.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}
