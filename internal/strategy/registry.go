package strategy

import (
	"slices"
	"sync"

	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// Constructor builds a fresh strategy instance from its config.
type Constructor func(config Config) (Strategy, error)

// Registry maps strategy names to constructors.
type Registry interface {
	Register(name string, constructor Constructor) error
	Create(name string, config Config) (Strategy, error)
	List() []string
	Remove(name string) error
}

type RegistryV1 struct {
	constructors map[string]Constructor
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() Registry {
	return &RegistryV1{
		constructors: make(map[string]Constructor),
		mu:           sync.RWMutex{},
	}
}

// DefaultRegistry returns a registry holding the built-in strategies.
func DefaultRegistry() Registry {
	registry := NewRegistry()

	//nolint:errcheck // the registry is empty
	registry.Register(MACDBollingerName, func(config Config) (Strategy, error) {
		return NewMACDBollingerStrategy(config)
	})

	return registry
}

func (r *RegistryV1) Register(name string, constructor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidParameter, "strategy %s already registered", name)
	}

	r.constructors[name] = constructor

	return nil
}

// Create builds a new, independent instance of the named strategy.
func (r *RegistryV1) Create(name string, config Config) (Strategy, error) {
	r.mu.RLock()
	constructor, exists := r.constructors[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeUnsupportedStrategy, "strategy %s not found", name)
	}

	return constructor(config)
}

// List returns the registered names in sorted order.
func (r *RegistryV1) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func (r *RegistryV1) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; !exists {
		return errors.Newf(errors.ErrCodeUnsupportedStrategy, "strategy %s not found", name)
	}

	delete(r.constructors, name)

	return nil
}
