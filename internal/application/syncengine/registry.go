package syncengine

import (
	"fmt"
	"sync"

	"github.com/jbctechsolutions/scribesync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
)

// Registry tracks the engines a coordinator drives, keyed by queue name.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]ports.Syncer
	order   []string // maintains registration order
}

// NewRegistry creates a new empty engine registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]ports.Syncer),
		order:   make([]string, 0),
	}
}

// Register adds an engine. Registering the same engine again is a no-op;
// registering a different engine under a taken name fails.
func (r *Registry) Register(engine ports.Syncer) error {
	if engine == nil {
		return fmt.Errorf("engine cannot be nil")
	}

	name := engine.Name()
	if name == "" {
		return fmt.Errorf("engine name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.engines[name]; exists {
		if existing == engine {
			return nil
		}
		return fmt.Errorf("%w: %s", domainerrors.ErrEngineRegistered, name)
	}

	r.order = append(r.order, name)
	r.engines[name] = engine
	return nil
}

// Unregister removes an engine. Removing an absent engine is a no-op.
// Returns true if the engine was found and removed.
func (r *Registry) Unregister(engine ports.Syncer) bool {
	if engine == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := engine.Name()
	existing, exists := r.engines[name]
	if !exists || existing != engine {
		return false
	}

	delete(r.engines, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get retrieves an engine by queue name.
// Returns nil if the engine is not found.
func (r *Registry) Get(name string) ports.Syncer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[name]
}

// GetRequired retrieves an engine by queue name, returning an error if not found.
func (r *Registry) GetRequired(name string) (ports.Syncer, error) {
	engine := r.Get(name)
	if engine == nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrQueueNotFound, name)
	}
	return engine, nil
}

// Names returns all registered queue names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Engines returns all registered engines in registration order.
func (r *Registry) Engines() []ports.Syncer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ports.Syncer, 0, len(r.order))
	for _, name := range r.order {
		if e, ok := r.engines[name]; ok {
			result = append(result, e)
		}
	}
	return result
}

// Count returns the number of registered engines.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
