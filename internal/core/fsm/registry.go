package fsm

import "sync"

// Registry maps a key (e.g. a transaction id) to a lazily constructed
// Machine. Machines held here are in-memory snapshots only; callers must
// reconcile them against persisted state (SetCurrent) before trusting them.
type Registry[K comparable, S, E comparable] struct {
	mu       sync.Mutex
	machines map[K]*Machine[S, E]
	factory  func() *Machine[S, E]
}

// NewRegistry creates a Registry that builds missing machines with factory.
func NewRegistry[K comparable, S, E comparable](factory func() *Machine[S, E]) *Registry[K, S, E] {
	return &Registry[K, S, E]{
		machines: make(map[K]*Machine[S, E]),
		factory:  factory,
	}
}

// Get returns the machine for key, creating it on first access.
func (r *Registry[K, S, E]) Get(key K) *Machine[S, E] {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[key]
	if !ok {
		m = r.factory()
		r.machines[key] = m
	}
	return m
}

// Evict drops the machine for key, e.g. once its transaction is terminal.
func (r *Registry[K, S, E]) Evict(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.machines, key)
}

// Len reports the number of cached machines.
func (r *Registry[K, S, E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}
