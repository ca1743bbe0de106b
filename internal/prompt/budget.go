package prompt

import (
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/models"
)

const (
	// DefaultMaxTokens is the prompt budget used when none is given.
	DefaultMaxTokens = 120000
	// Separator joins context chunks.
	Separator = "\n\n---\n\n"

	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"

	OmittedMarker   = "[Context omitted due to token limits]"
	NoContextMarker = "[No relevant context found or fits within token limits]"
)

// DefaultAnswerTemplate asks the model to answer from the supplied context only.
const DefaultAnswerTemplate = `You are a helpful assistant answering questions about the user's documents.
Use only the context below. If the context does not contain the answer, say that you could not find it.

Context:
{context}

Question: {question}

Answer:`

// Budgeter fits ranked context into a prompt template.
type Budgeter struct {
	counter *Counter
	logger  *zap.Logger
}

// NewBudgeter creates a budgeter. A nil counter uses NewCounter.
func NewBudgeter(counter *Counter, logger *zap.Logger) *Budgeter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counter == nil {
		counter = NewCounter(logger)
	}
	return &Budgeter{counter: counter, logger: logger}
}

// Counter returns the token counter.
func (b *Budgeter) Counter() *Counter { return b.counter }

// BuildPromptWithContextLimit fills template with the question and as many leading
// chunks as fit in maxTokens (DefaultMaxTokens when <= 0). Chunks are taken in the
// given order and inclusion stops at the first one that does not fit. The question
// is never truncated: if it and the template exhaust the budget, context is
// replaced by OmittedMarker. If no chunk fits, context is NoContextMarker, or
// OmittedMarker when even NoContextMarker would overflow. The finished prompt
// stays within maxTokens except in those two OmittedMarker cases.
func (b *Budgeter) BuildPromptWithContextLimit(chunks []string, question, template string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	skeleton := b.counter.CountTokens(fill(template, "", question))
	sepTokens := b.counter.CountTokens(Separator)

	available := maxTokens - skeleton
	if available <= 0 {
		b.logger.Warn("question and template exceed the prompt budget",
			zap.Int("max_tokens", maxTokens),
			zap.Int("prompt_tokens", skeleton),
		)
		return fill(template, OmittedMarker, question)
	}

	used := 0
	included := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		cost := b.counter.CountTokens(chunk)
		if len(included) > 0 {
			cost += sepTokens
		}
		if used+cost > available {
			break
		}
		used += cost
		included = append(included, chunk)
	}
	// Piece counts are an estimate of the joined prompt; the joined prompt decides.
	for len(included) > 0 {
		prompt := fill(template, strings.Join(included, Separator), question)
		if b.counter.CountTokens(prompt) <= maxTokens {
			b.logger.Debug("prompt context budgeted",
				zap.Int("available", available),
				zap.Int("used", used),
				zap.Int("included", len(included)),
				zap.Int("offered", len(chunks)),
			)
			return prompt
		}
		included = included[:len(included)-1]
	}

	prompt := fill(template, NoContextMarker, question)
	if b.counter.CountTokens(prompt) > maxTokens {
		b.logger.Warn("no room for the no-context marker",
			zap.Int("max_tokens", maxTokens),
			zap.Int("prompt_tokens", skeleton),
		)
		return fill(template, OmittedMarker, question)
	}
	b.logger.Debug("no context fits the prompt budget",
		zap.Int("available", available),
		zap.Int("offered", len(chunks)),
	)
	return prompt
}

// fill replaces placeholders in the template only, never inside the substituted
// context or question.
func fill(template, context, question string) string {
	parts := strings.Split(template, QuestionPlaceholder)
	for i := range parts {
		parts[i] = strings.ReplaceAll(parts[i], ContextPlaceholder, context)
	}
	return strings.Join(parts, question)
}

// ChunkTexts turns ranked search results into context strings, surrounding each
// chunk with its neighbors when they were fetched.
func ChunkTexts(results []*models.EnhancedSearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		var parts []string
		if r.PrecedingContext != "" {
			parts = append(parts, r.PrecedingContext)
		}
		parts = append(parts, r.Text)
		if r.FollowingContext != "" {
			parts = append(parts, r.FollowingContext)
		}
		out = append(out, strings.Join(parts, "\n"))
	}
	return out
}
