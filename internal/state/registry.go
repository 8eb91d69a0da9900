package state

import "sync"

// Registry maps local session tokens to their controllers.
type Registry struct {
	mu          sync.Mutex
	controllers map[string]*Controller
	newFn       func() *Controller
}

// NewRegistry creates a registry that builds controllers with newFn.
func NewRegistry(newFn func() *Controller) *Registry {
	return &Registry{
		controllers: make(map[string]*Controller),
		newFn:       newFn,
	}
}

// Get returns the controller for token.
func (r *Registry) Get(token string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[token]
	return c, ok
}

// GetOrCreate returns the controller for token, creating an empty one if
// needed. created reports whether the caller must restore it.
func (r *Registry) GetOrCreate(token string) (c *Controller, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[token]; ok {
		return c, false
	}
	c = r.newFn()
	r.controllers[token] = c
	return c, true
}

// Put associates c with token, replacing any previous controller.
func (r *Registry) Put(token string, c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[token] = c
}

// Remove drops the controller for token.
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controllers, token)
}

// Prune drops the controllers of all given tokens.
func (r *Registry) Prune(tokens []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tokens {
		delete(r.controllers, t)
	}
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// New creates an unregistered controller.
func (r *Registry) New() *Controller {
	return r.newFn()
}
