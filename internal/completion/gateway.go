package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/extract"
	"github.com/hyperjump/inqdoc/internal/models"
)

var errEmptyCompletion = errors.New("empty completion")

// Default call settings for answers and for extraction recovery.
var (
	DefaultAnswerOptions     = CallOptions{Temperature: 0.2, MaxTokens: 2048}
	DefaultExtractionOptions = CallOptions{MaxTokens: 8192}
)

// Gateway tries an ordered list of providers until one returns a non-empty answer.
type Gateway struct {
	providers  []Provider
	logger     *zap.Logger
	answer     CallOptions
	extraction CallOptions
}

var _ extract.Fallback = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithAnswerOptions overrides the call settings used by GetCompletion.
func WithAnswerOptions(o CallOptions) Option {
	return func(g *Gateway) { g.answer = o }
}

// WithExtractionOptions overrides the call settings used by GetExtractionFallback.
func WithExtractionOptions(o CallOptions) Option {
	return func(g *Gateway) { g.extraction = o }
}

// NewGateway creates a gateway over providers, tried in the given order.
func NewGateway(providers []Provider, opts ...Option) *Gateway {
	g := &Gateway{
		providers:  providers,
		logger:     zap.NewNop(),
		answer:     DefaultAnswerOptions,
		extraction: DefaultExtractionOptions,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGatewayFromConfig builds every configured provider through reg. A provider
// that cannot be built is logged and left out of the chain.
func NewGatewayFromConfig(ctx context.Context, reg *ProviderRegistry, cfgs []ProviderConfig, opts ...Option) *Gateway {
	g := NewGateway(nil, opts...)
	for _, cfg := range cfgs {
		p, err := reg.Build(ctx, cfg, g.logger)
		if err != nil {
			g.logger.Warn("completion provider disabled", zap.String("provider", cfg.Name), zap.Error(err))
			continue
		}
		g.providers = append(g.providers, p)
	}
	return g
}

// Providers returns the provider names in order.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// GetCompletion answers a prompt with the first provider that succeeds.
func (g *Gateway) GetCompletion(ctx context.Context, prompt string) (string, error) {
	return g.complete(ctx, prompt, g.answer)
}

// GetExtractionFallback asks for the readable text of a document.
func (g *Gateway) GetExtractionFallback(ctx context.Context, prompt string) (string, error) {
	return g.complete(ctx, prompt, g.extraction)
}

// ExtractionFallback implements extract.Fallback.
func (g *Gateway) ExtractionFallback(ctx context.Context, prompt string) (string, error) {
	return g.GetExtractionFallback(ctx, prompt)
}

func (g *Gateway) complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	if len(g.providers) == 0 {
		return "", models.ErrNoProviders
	}
	errs := []error{models.ErrAllProvidersFailed}
	for _, p := range g.providers {
		start := time.Now()
		text, err := p.Complete(ctx, prompt, opts)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyCompletion
		}
		if err == nil {
			g.logger.Debug("completion succeeded",
				zap.String("provider", p.Name()),
				zap.Int("chars", len(text)),
				zap.Duration("took", time.Since(start)),
			)
			return text, nil
		}
		g.logger.Warn("completion provider failed", zap.String("provider", p.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}
