package agent

import (
	"sort"
	"sync"
)

// Router maps agent IDs to configured loops so surfaces can address a
// specific agent by name.
type Router struct {
	mu    sync.RWMutex
	loops map[string]*Loop
}

func NewRouter() *Router {
	return &Router{loops: make(map[string]*Loop)}
}

func (r *Router) Register(id string, loop *Loop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loops[id] = loop
}

func (r *Router) Get(id string) (*Loop, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loops[id]
	return l, ok
}

func (r *Router) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.loops))
	for id := range r.loops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
