package pos

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// ReservedName cannot be registered; it names the abstract adapter.
const ReservedName = "base"

// Registry maps lowercase provider names to adapters.  It is filled at
// startup and read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds a under its lowercased name.  Empty and reserved names are
// rejected, and so is a name that is already taken.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return ErrInvalidAdapterName
	}
	name := normalizeName(a.Name())
	if name == "" || name == ReservedName {
		return ErrInvalidAdapterName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return ErrDuplicateAdapter
	}
	r.adapters[name] = a
	return nil
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[normalizeName(name)]
	if !ok {
		return nil, &ProviderNotFoundError{Name: name, Available: r.namesLocked()}
	}
	return a, nil
}

// Process resolves the adapter and runs its pipeline.  Failures propagate
// unmodified and nothing is retried: a provider call that might have charged
// the payer must be reconciled, not repeated.
func (r *Registry) Process(ctx context.Context, name string, req PaymentRequest) (PaymentResult, error) {
	a, err := r.Get(name)
	if err != nil {
		return PaymentResult{}, err
	}
	return Run(ctx, a, req)
}

// AvailableProviders returns the registered names, sorted.
func (r *Registry) AvailableProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Configured reports, per provider, whether it is ready to take payments.
func (r *Registry) Configured() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]error, len(r.adapters))
	for name, a := range r.adapters {
		var err error
		if c, ok := a.(Configurable); ok {
			err = c.CheckConfigured()
		}
		out[name] = err
	}
	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
