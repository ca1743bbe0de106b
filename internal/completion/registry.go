package completion

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/models"
)

// Factory builds a provider from its configuration.
type Factory func(ctx context.Context, cfg ProviderConfig) (Provider, error)

// ProviderRegistry maps provider names to factories.
type ProviderRegistry struct {
	factories map[string]Factory
}

// NewProviderRegistry returns a registry with openrouter, groq, gemini and ollama.
func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{factories: make(map[string]Factory)}
	openAICompatible := func(_ context.Context, cfg ProviderConfig) (Provider, error) {
		return NewOpenAICompatibleProvider(cfg)
	}
	r.Register(ProviderOpenRouter, openAICompatible)
	r.Register(ProviderGroq, openAICompatible)
	r.Register(ProviderGemini, func(ctx context.Context, cfg ProviderConfig) (Provider, error) {
		return NewGeminiProvider(ctx, cfg)
	})
	r.Register(ProviderOllama, func(_ context.Context, cfg ProviderConfig) (Provider, error) {
		return NewOllamaProvider(cfg)
	})
	return r
}

// Register adds or replaces a factory.
func (r *ProviderRegistry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered provider names, sorted.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the provider named by cfg.Name, wrapped with its retry settings.
func (r *ProviderRegistry) Build(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	f, ok := r.factories[cfg.Name]
	if !ok {
		return nil, &models.NoImplementationError{Kind: "completion provider", Name: cfg.Name}
	}
	p, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create completion provider %s: %w", cfg.Name, err)
	}
	return WithRetry(p, RetryConfigFor(cfg), logger), nil
}
