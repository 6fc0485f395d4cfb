package report

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Factory creates an instance of a generator. Instances are cheap and
// carry no shared state; the executor creates one per run.
type Factory func() Generator

// Resolver looks up a factory for an identifier that was not
// registered at startup (dynamically discovered report units). It
// returns NotRegisteredError when it cannot serve the id.
type Resolver func(id string) (Factory, error)

// NotRegisteredError reports an unknown report identifier. It never
// reaches a worker's execution path: resolution failures surface at
// submission time or finalize the job with a validation error.
type NotRegisteredError struct {
	ID string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("unknown report id %q", e.ID)
}

// IsNotRegistered checks if the error is a NotRegisteredError.
func IsNotRegistered(err error) bool {
	var target *NotRegisteredError
	return errors.As(err, &target)
}

// Registry maps report identifiers to generator factories. Built-ins
// register at process start (init functions); dynamic entries are
// served by resolvers and cached after first resolution.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	resolvers []Resolver
	resolved  map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		resolved:  make(map[string]Factory),
	}
}

// Register adds a factory under the given id, overwriting any previous
// registration (logged, since overwrites usually indicate a packaging
// mistake).
func (r *Registry) Register(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[id]; exists {
		log.Warn().Str("component", "report-registry").Str("report_id", id).
			Msg("generator factory is being overwritten")
	}
	r.factories[id] = factory
}

// RegisterResolver adds a resolver consulted, in registration order,
// for identifiers with no static factory.
func (r *Registry) RegisterResolver(resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers = append(r.resolvers, resolver)
}

// Resolve returns a fresh generator instance for the id. Dynamic
// resolutions are cached so repeated lookups skip the resolver cost.
func (r *Registry) Resolve(id string) (Generator, error) {
	factory, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	gen := factory()
	if gen == nil {
		return nil, fmt.Errorf("factory for report id %q returned a nil generator", id)
	}
	return gen, nil
}

func (r *Registry) factory(id string) (Factory, error) {
	r.mu.RLock()
	if f, ok := r.factories[id]; ok {
		r.mu.RUnlock()
		return f, nil
	}
	if f, ok := r.resolved[id]; ok {
		r.mu.RUnlock()
		return f, nil
	}
	resolvers := make([]Resolver, len(r.resolvers))
	copy(resolvers, r.resolvers)
	r.mu.RUnlock()

	for _, resolve := range resolvers {
		f, err := resolve(id)
		if err != nil {
			if IsNotRegistered(err) {
				continue
			}
			return nil, fmt.Errorf("resolve report id %q: %w", id, err)
		}
		r.mu.Lock()
		r.resolved[id] = f
		r.mu.Unlock()
		log.Debug().Str("component", "report-registry").Str("report_id", id).
			Msg("cached dynamically resolved generator")
		return f, nil
	}
	return nil, &NotRegisteredError{ID: id}
}

// Known reports whether the id resolves to a generator.
func (r *Registry) Known(id string) bool {
	_, err := r.factory(id)
	return err == nil
}

// List returns metadata for all statically registered generators plus
// any cached dynamic resolutions, sorted by id.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	factories := make(map[string]Factory, len(r.factories)+len(r.resolved))
	for id, f := range r.factories {
		factories[id] = f
	}
	for id, f := range r.resolved {
		factories[id] = f
	}
	r.mu.RUnlock()

	out := make([]Metadata, 0, len(factories))
	for id, f := range factories {
		gen := f()
		if gen == nil {
			continue
		}
		meta := gen.Metadata()
		if meta.ID == "" || meta.ID != id {
			meta.ID = id
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// defaultRegistry serves package-level registration from init
// functions in the built-in report packages.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a factory to the process-wide registry.
func Register(id string, factory Factory) {
	defaultRegistry.Register(id, factory)
}
