package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "text-embedding-004"

const geminiBatchLimit = 100

type geminiEmbedAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder embeds text with the Gemini API.
type GeminiEmbedder struct {
	api        geminiEmbedAPI
	model      string
	dimensions int
}

// NewGeminiEmbedder connects to the Gemini API. dimensions > 0 requests a reduced
// output size; 0 keeps the model default (768).
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return newGeminiEmbedder(client.Models, model, dimensions), nil
}

func newGeminiEmbedder(api geminiEmbedAPI, model string, dimensions int) *GeminiEmbedder {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiEmbedder{api: api, model: model, dimensions: dimensions}
}

func (e *GeminiEmbedder) config() *genai.EmbedContentConfig {
	cfg := &genai.EmbedContentConfig{}
	if e.dimensions > 0 {
		d := int32(e.dimensions)
		cfg.OutputDimensionality = &d
	}
	return cfg
}

// Embed embeds a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most 100 contents.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := start + geminiBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.Text(t)...)
		}
		resp, err := e.api.EmbedContent(ctx, e.model, contents, e.config())
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if resp == nil || len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini embed: expected %d embeddings", end-start)
		}
		for _, emb := range resp.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("gemini embed: missing embedding")
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

// Dimensions returns the requested output size, or 768.
func (e *GeminiEmbedder) Dimensions() int {
	if e.dimensions > 0 {
		return e.dimensions
	}
	return 768
}

// Close is a no-op; the genai client holds no resources.
func (e *GeminiEmbedder) Close() error { return nil }
