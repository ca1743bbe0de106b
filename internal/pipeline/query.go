package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/internal/prompt"
	"github.com/hyperjump/inqdoc/internal/search"
)

// AskOptions control retrieval and prompt assembly for a question.
type AskOptions struct {
	Search search.Options
	// Template overrides the configured answer template.
	Template string
	// MaxTokens overrides the configured prompt budget.
	MaxTokens int
}

// SearchOptions applies req over the configured search defaults and clamps TopK.
func (p *Pipeline) SearchOptions(req *models.SearchRequest) search.Options {
	o := p.settings.Search.WithRequest(req)
	if p.settings.MaxTopK > 0 && o.TopK > p.settings.MaxTopK {
		o.TopK = p.settings.MaxTopK
	}
	return o
}

// AskOptions builds AskOptions from req. Without an explicit TopK the configured
// number of context results is retrieved.
func (p *Pipeline) AskOptions(req *models.SearchRequest) AskOptions {
	o := p.SearchOptions(req)
	if req.TopK <= 0 {
		o.TopK = p.settings.ContextResults
	}
	return AskOptions{Search: o}
}

// Search runs a hybrid search.
func (p *Pipeline) Search(ctx context.Context, query string, opts search.Options) ([]*models.EnhancedSearchResult, error) {
	return p.searcher.HybridSearch(ctx, query, opts)
}

// Ask retrieves context for question, fits it into the prompt budget and asks
// the completion gateway. Sources are the results offered to the budgeter.
func (p *Pipeline) Ask(ctx context.Context, question string, opts AskOptions) (*models.AskResponse, error) {
	start := time.Now()
	results, err := p.searcher.HybridSearch(ctx, question, opts.Search)
	if err != nil {
		return nil, err
	}

	template := opts.Template
	if template == "" {
		template = p.settings.PromptTemplate
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.settings.PromptMaxTokens
	}
	text := p.Budgeter.BuildPromptWithContextLimit(prompt.ChunkTexts(results), question, template, maxTokens)
	tokens := p.Budgeter.Counter().CountTokens(text)

	answer, err := p.Gateway.GetCompletion(ctx, text)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("question answered",
		zap.Int("sources", len(results)),
		zap.Int("prompt_tokens", tokens),
		zap.Duration("took", time.Since(start)),
	)
	return &models.AskResponse{
		Question:     question,
		Answer:       answer,
		Sources:      results,
		PromptTokens: tokens,
		QueryTime:    time.Since(start).Milliseconds(),
	}, nil
}
