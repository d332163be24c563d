package livespec

import (
	"fmt"
	"sync"
)

// ComponentRenderer produces the target representation of one resolved
// element: a DOM-shaped map, an HTML string, a PDF primitive, whatever the
// output target is. Children arrive already rendered, in declaration
// order, with skipped elements removed.
type ComponentRenderer func(node *Node, children []interface{}) (interface{}, error)

// ComponentRegistry is the pluggable render seam: it maps catalog type
// names to renderers for one output target.
//
// The walker asks the registry for each element's type; a missing type
// falls back to the registry fallback, or skips the element with a
// diagnostic. A nil registry renders every element to its resolved Node,
// which is what the live mount ships to browser clients.
type ComponentRegistry struct {
	mu        sync.RWMutex
	renderers map[string]ComponentRenderer
	fallback  ComponentRenderer
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{renderers: make(map[string]ComponentRenderer)}
}

// Register adds a renderer for a component type. Registering the same
// type twice is an error so catalog collisions surface at startup.
func (r *ComponentRegistry) Register(name string, renderer ComponentRenderer) error {
	if name == "" {
		return fmt.Errorf("component type cannot be empty")
	}
	if renderer == nil {
		return fmt.Errorf("renderer for %q cannot be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.renderers[name]; exists {
		return fmt.Errorf("component already registered: %s", name)
	}
	r.renderers[name] = renderer
	return nil
}

// SetFallback installs the renderer used for unknown component types.
func (r *ComponentRegistry) SetFallback(renderer ComponentRenderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = renderer
}

// Renderer returns the renderer for a type, falling back if configured.
// The bool reports whether any renderer is available.
func (r *ComponentRegistry) Renderer(name string) (ComponentRenderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if renderer, exists := r.renderers[name]; exists {
		return renderer, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Has reports whether a type has its own renderer (fallback excluded).
func (r *ComponentRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.renderers[name]
	return exists
}

// Types returns the registered component type names.
func (r *ComponentRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.renderers))
	for name := range r.renderers {
		types = append(types, name)
	}
	return types
}
