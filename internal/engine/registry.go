package engine

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Registry is the static engine set, loaded once at startup from
// configuration. It is read-only after construction; availability changes
// are tracked by the HealthRegistry, never by mutating this set.
type Registry struct {
	engines map[string]Engine
	names   []string
}

// NewRegistry builds a registry from the given engines. Duplicate names are
// rejected.
func NewRegistry(engines ...Engine) (*Registry, error) {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		name := e.Name()
		if _, dup := r.engines[name]; dup {
			return nil, eris.Errorf("engine: duplicate registration for %q", name)
		}
		r.engines[name] = e
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the engine with the given name, or nil.
func (r *Registry) Get(name string) Engine {
	return r.engines[name]
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Select resolves a caller-provided engine filter against the registry.
// An empty filter selects every registered engine.
func (r *Registry) Select(filter []string) ([]Engine, error) {
	if len(filter) == 0 {
		out := make([]Engine, 0, len(r.names))
		for _, name := range r.names {
			out = append(out, r.engines[name])
		}
		return out, nil
	}
	out := make([]Engine, 0, len(filter))
	for _, name := range filter {
		e := r.engines[name]
		if e == nil {
			return nil, eris.Errorf("engine: unknown engine %q (registered: %v)", name, r.names)
		}
		out = append(out, e)
	}
	return out, nil
}
