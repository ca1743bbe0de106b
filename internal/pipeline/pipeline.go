// Package pipeline wires extraction, chunking, embedding, vector storage, search
// and completion into the ingest, search and ask operations of the service.
package pipeline

import (
	"errors"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/chunking"
	"github.com/hyperjump/inqdoc/internal/completion"
	"github.com/hyperjump/inqdoc/internal/embedding"
	"github.com/hyperjump/inqdoc/internal/extract"
	"github.com/hyperjump/inqdoc/internal/prompt"
	"github.com/hyperjump/inqdoc/internal/search"
	"github.com/hyperjump/inqdoc/internal/storage"
	"github.com/hyperjump/inqdoc/internal/vectorstore"
)

// Components are the collaborators of a Pipeline. New builds them from config;
// tests assemble them directly.
type Components struct {
	Documents storage.DocumentStore
	Ledger    storage.Ledger
	Extractor *extract.Service
	Chunkers  *chunking.Registry
	Embedder  embedding.Embedder
	Stores    *vectorstore.Registry
	Budgeter  *prompt.Budgeter
	Gateway   *completion.Gateway
	Pool      *ants.Pool
}

// Settings hold the request defaults taken from config.
type Settings struct {
	Search          search.Options
	MaxTopK         int
	PromptMaxTokens int
	PromptTemplate  string
	ContextResults  int
}

// DefaultSettings mirror the config defaults.
func DefaultSettings() Settings {
	return Settings{
		Search:          search.DefaultOptions(),
		MaxTopK:         search.MaxCandidates,
		PromptMaxTokens: prompt.DefaultMaxTokens,
		PromptTemplate:  prompt.DefaultAnswerTemplate,
		ContextResults:  search.DefaultTopK,
	}
}

// Pipeline is the explicitly constructed service core. It owns every component
// handed to it and releases them in Close.
type Pipeline struct {
	Components
	settings Settings
	searcher *search.Searcher
	logger   *zap.Logger
	closers  []func() error
}

// NewWithComponents assembles a pipeline from ready components. Missing
// chunkers, budgeter and gateway get defaults.
func NewWithComponents(c Components, settings Settings, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Chunkers == nil {
		c.Chunkers = chunking.NewDefaultRegistry()
	}
	if c.Budgeter == nil {
		c.Budgeter = prompt.NewBudgeter(nil, logger)
	}
	if c.Gateway == nil {
		c.Gateway = completion.NewGateway(nil, completion.WithLogger(logger))
	}
	if settings.PromptTemplate == "" {
		settings.PromptTemplate = prompt.DefaultAnswerTemplate
	}
	if settings.ContextResults <= 0 {
		settings.ContextResults = search.DefaultTopK
	}
	return &Pipeline{
		Components: c,
		settings:   settings,
		searcher:   search.NewSearcher(c.Embedder, c.Stores, logger),
		logger:     logger,
	}
}

// Settings returns the request defaults.
func (p *Pipeline) Settings() Settings { return p.settings }

func (p *Pipeline) onClose(fn func() error) {
	p.closers = append(p.closers, fn)
}

// Close releases vector stores, the embedder, the worker pool and anything
// registered while building the pipeline, in reverse order.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Stores != nil {
		errs = append(errs, p.Stores.Close())
	}
	if p.Embedder != nil {
		errs = append(errs, p.Embedder.Close())
	}
	if p.Pool != nil {
		p.Pool.Release()
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}
