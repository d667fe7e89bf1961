package tool

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrMissingName = errors.New("tool definition must include a name")
	ErrDuplicate   = errors.New("duplicate tool")
)

// Tool is a registered capability.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Registry maps unique tool names to their definition and handler.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Add registers a tool. Registering an existing name fails and keeps the
// first registration.
func (r *Registry) Add(def Definition, h Handler) (Tool, error) {
	if def.Name == "" {
		return Tool{}, ErrMissingName
	}
	if h == nil {
		return Tool{}, fmt.Errorf("tool %q: handler is nil", def.Name)
	}
	if def.Type == "" {
		def.Type = TypeFunction
	}
	if def.Parameters == nil {
		def.Parameters = Object(nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[def.Name]; ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrDuplicate, def.Name)
	}

	t := Tool{Definition: def, Handler: h}
	r.tools[def.Name] = t
	r.order = append(r.order, def.Name)
	return t, nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
