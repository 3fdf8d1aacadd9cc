package breaker

import "sync"

// Registry holds one Breaker per analyzer, created lazily on first use.
// Grounded on the teacher's circuitbreaker.Registry (double-checked
// locking Get/GetAll).
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	policy   Policy
}

// NewRegistry creates a Registry that builds new breakers with the given
// policy.
func NewRegistry(policy Policy) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		policy:   policy,
	}
}

// Get returns the Breaker for name, creating it if necessary.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	b = New(name, r.policy)
	r.breakers[name] = b
	return b
}

// Snapshot returns a name->state map for every breaker created so far, for
// GET /health and GET /debug/breakers. It may be slightly stale under
// concurrent access, per §9.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
