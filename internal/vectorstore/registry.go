package vectorstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/inqdoc/internal/models"
)

// Factory creates a store on first use.
type Factory func() (Client, error)

// Registry maps store names to factories and memoizes the instances they create.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Client
	def       string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Client),
	}
}

// Register adds or replaces a factory. The first registration becomes the default.
// Replacing a factory drops any instance created by the old one without closing it.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.instances, name)
	if r.def == "" {
		r.def = name
	}
}

// SetDefault selects the store returned for an empty name.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		return &models.NoImplementationError{Kind: "vector store", Name: name}
	}
	r.def = name
	return nil
}

// Default returns the default store name.
func (r *Registry) Default() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.def
}

// Get returns the named store, or the default for "". Instances are created once.
// A factory error is returned and retried on the next call.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		name = r.def
		if name == "" {
			return nil, &models.NoImplementationError{Kind: "vector store"}
		}
	}
	if c, ok := r.instances[name]; ok {
		return c, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, &models.NoImplementationError{Kind: "vector store", Name: name}
	}
	c, err := f()
	if err != nil {
		return nil, fmt.Errorf("create vector store %s: %w", name, err)
	}
	r.instances[name] = c
	return c, nil
}

// Names returns the registered store names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close closes every instance created so far.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, c := range r.instances {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.instances = make(map[string]Client)
	return errors.Join(errs...)
}
