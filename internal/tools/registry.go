package tools

import (
	"log/slog"
	"sync"
)

// Registry holds every tool the service knows about.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	fallback *Fallback
}

// NewRegistry creates an empty registry. fallback may be nil.
func NewRegistry(fallback *Fallback) *Registry {
	return &Registry{tools: make(map[string]Tool), fallback: fallback}
}

// Register adds tools, replacing any previous tool of the same name.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ForAgent returns an executor restricted to names, in that order. Names
// without a registered tool are skipped.
func (r *Registry) ForAgent(names ...string) *Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := &Executor{tools: make(map[string]Tool, len(names)), fallback: r.fallback}
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			slog.Warn("tool not registered, skipping", "tool", name)
			continue
		}
		if _, dup := e.tools[name]; dup {
			continue
		}
		e.tools[name] = t
		e.order = append(e.order, name)
	}
	return e
}
