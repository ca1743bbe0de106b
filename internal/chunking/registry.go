package chunking

import (
	"sort"
	"sync"

	"github.com/hyperjump/inqdoc/internal/models"
)

// Factory builds a chunker.
type Factory func() (Chunker, error)

// Registry maps strategy names to factories and tracks a default.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	def       string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry registers the built-in strategies with opts applied on top of
// each strategy's defaults. The sliding window is the default.
func NewDefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry()
	r.Register(NameSlidingWindow, func() (Chunker, error) { return NewSlidingWindow(opts...) })
	r.Register(NameSemantic, func() (Chunker, error) { return NewSemantic(opts...) })
	r.Register(NameRecursive, func() (Chunker, error) { return NewRecursive(opts...) })
	_ = r.SetDefault(NameSlidingWindow)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// SetDefault selects the strategy returned for an empty name.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		return &models.NoImplementationError{Kind: "chunker", Name: name}
	}
	r.def = name
	return nil
}

// Default returns the default strategy name, or "" if none.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Get builds the named chunker; an empty name resolves the default.
func (r *Registry) Get(name string) (Chunker, error) {
	r.mu.RLock()
	if name == "" {
		name = r.def
	}
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if name == "" || !ok {
		return nil, &models.NoImplementationError{Kind: "chunker", Name: name}
	}
	return f()
}

// Names lists registered strategies, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
