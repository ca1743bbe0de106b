// Package completion sends prompts to hosted or local language models and falls
// back across an ordered list of providers.
package completion

import (
	"context"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGroq       = "groq"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
)

// CallOptions tune a single completion call. Zero values leave the provider default.
type CallOptions struct {
	Temperature float64
	MaxTokens   int
}

// Provider produces a completion for a prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, opts CallOptions) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, prompt string, opts CallOptions) (string, error)
}

func (p ProviderFunc) Name() string { return p.ProviderName }

func (p ProviderFunc) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	return p.Fn(ctx, prompt, opts)
}

// ProviderConfig configures one entry of the provider chain.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// MaxRetries of transient failures; 0 disables retrying.
	MaxRetries int `yaml:"max_retries"`
	// RequestsPerSecond > 0 enables client-side rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

var defaultBaseURLs = map[string]string{
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
	ProviderGroq:       "https://api.groq.com/openai/v1",
	ProviderOllama:     "http://localhost:11434",
}

var defaultModels = map[string]string{
	ProviderOpenRouter: "openai/gpt-4o-mini",
	ProviderGroq:       "llama-3.1-8b-instant",
	ProviderGemini:     "gemini-2.5-flash",
	ProviderOllama:     "llama3.2",
}

// withDefaults fills the base URL and model from the provider name.
func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURLs[c.Name]
	}
	if c.Model == "" {
		c.Model = defaultModels[c.Name]
	}
	return c
}
