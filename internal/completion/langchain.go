package completion

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainProvider completes prompts through a langchaingo model.
type LangChainProvider struct {
	name  string
	model llms.Model
}

var _ Provider = (*LangChainProvider)(nil)

// NewLangChainProvider wraps an already constructed langchaingo model.
func NewLangChainProvider(name string, model llms.Model) *LangChainProvider {
	return &LangChainProvider{name: name, model: model}
}

// NewOpenAICompatibleProvider targets an OpenAI-style chat completions endpoint,
// as served by OpenRouter and Groq.
func NewOpenAICompatibleProvider(cfg ProviderConfig) (*LangChainProvider, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Name)
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%s client: %w", cfg.Name, err)
	}
	return NewLangChainProvider(cfg.Name, llm), nil
}

// NewOllamaProvider targets a local Ollama server.
func NewOllamaProvider(cfg ProviderConfig) (*LangChainProvider, error) {
	cfg = cfg.withDefaults()
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return NewLangChainProvider(cfg.Name, llm), nil
}

func (p *LangChainProvider) Name() string { return p.name }

// Complete sends prompt as a single human message.
func (p *LangChainProvider) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	var callOpts []llms.CallOption
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	return llms.GenerateFromSinglePrompt(ctx, p.model, prompt, callOpts...)
}
