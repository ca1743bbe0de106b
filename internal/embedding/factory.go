package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Provider names.
const (
	ProviderMock   = "mock"
	ProviderONNX   = "onnx"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and configures an embedder.
type Config struct {
	Provider   string
	Model      string
	ModelPath  string
	Dimensions int
	MaxTokens  int
	APIKey     string
	BaseURL    string
	CacheSize  int
}

// New builds the configured embedder, wrapped in an LRU when CacheSize > 0.
// An ONNX model that cannot be loaded falls back to the mock embedder.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "", ProviderMock:
		e = NewMockEmbedder(cfg.Dimensions)
	case ProviderONNX:
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("onnx embedder unavailable, using mock embeddings", zap.Error(err))
			e, err = NewMockEmbedder(cfg.Dimensions), nil
		}
	case ProviderGemini:
		e, err = NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case ProviderOllama:
		e, err = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s embedder: %w", cfg.Provider, err)
	}
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Provider),
		zap.Int("dimensions", e.Dimensions()),
	)
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
