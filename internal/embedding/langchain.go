package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainEmbedder adapts a langchaingo embedder (OpenAI-compatible or Ollama).
type LangChainEmbedder struct {
	inner      embeddings.Embedder
	dimensions int
}

// NewOpenAIEmbedder embeds through an OpenAI-compatible endpoint. An empty baseURL
// targets api.openai.com.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) (*LangChainEmbedder, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if model != "" {
		opts = append(opts, openai.WithEmbeddingModel(model))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	inner, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return &LangChainEmbedder{inner: inner, dimensions: dimensions}, nil
}

// NewOllamaEmbedder embeds through a local Ollama server.
func NewOllamaEmbedder(serverURL, model string, dimensions int) (*LangChainEmbedder, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	inner, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return &LangChainEmbedder{inner: inner, dimensions: dimensions}, nil
}

// Embed embeds a query-style text.
func (e *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.inner.EmbedQuery(ctx, text)
}

// EmbedBatch embeds document texts.
func (e *LangChainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

// Dimensions returns the configured dimension.
func (e *LangChainEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op.
func (e *LangChainEmbedder) Close() error { return nil }
