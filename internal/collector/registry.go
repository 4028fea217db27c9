package collector

import (
	"github.com/rotisserie/eris"

	"github.com/commonwealth-analytics/thriving-index/internal/config"
)

// Registry maps collector names to their implementations.
type Registry struct {
	collectors map[string]Collector
	order      []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry populated with all collectors.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		collectors: make(map[string]Collector),
	}

	r.Register(&ACS{cfg: cfg})
	r.Register(&LAUS{})
	r.Register(&CAINC{cfg: cfg})

	return r
}

// Register adds a collector to the registry.
func (r *Registry) Register(c Collector) {
	name := c.Name()
	r.collectors[name] = c
	r.order = append(r.order, name)
}

// Get returns a collector by name.
func (r *Registry) Get(name string) (Collector, error) {
	c, ok := r.collectors[name]
	if !ok {
		return nil, eris.Errorf("collector: unknown collector %q", name)
	}
	return c, nil
}

// Select returns the named collectors, or all of them when names is empty.
func (r *Registry) Select(names []string) ([]Collector, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	var result []Collector
	for _, name := range names {
		c, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// All returns all collectors in registration order.
func (r *Registry) All() []Collector {
	result := make([]Collector, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.collectors[name])
	}
	return result
}

// AllNames returns all registered collector names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
