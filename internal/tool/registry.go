package tool

import (
	"fmt"
	"iter"
	"sync/atomic"
)

type entry struct {
	desc    Descriptor
	handler Handler
}

// Registry maps tool names to descriptors and handlers. It is populated
// during startup from a single goroutine and then frozen; after Freeze it is
// read-only and safe for unsynchronized concurrent reads.
type Registry struct {
	order  []string
	byName map[string]entry
	frozen atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]entry)}
}

// Register adds a tool. Registering an existing name fails with a
// *DuplicateToolError and leaves the registry unchanged.
func (r *Registry) Register(desc Descriptor, h Handler) error {
	if r.frozen.Load() {
		return fmt.Errorf("register %q: %w", desc.Name, ErrRegistryFrozen)
	}
	if h == nil {
		return fmt.Errorf("%w: tool %q has no handler", ErrInvalidDescriptor, desc.Name)
	}
	if err := desc.Validate(); err != nil {
		return err
	}
	if _, exists := r.byName[desc.Name]; exists {
		return &DuplicateToolError{Name: desc.Name}
	}
	r.byName[desc.Name] = entry{desc: cloneDescriptor(desc), handler: h}
	r.order = append(r.order, desc.Name)
	return nil
}

// RegisterAll registers tools in order and stops at the first error.
func (r *Registry) RegisterAll(tools ...Tool) error {
	for _, t := range tools {
		if err := r.Register(t.Descriptor, t.Handler); err != nil {
			return err
		}
	}
	return nil
}

// Freeze ends the registration phase.
func (r *Registry) Freeze() { r.frozen.Store(true) }

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool { return r.frozen.Load() }

// Get returns the descriptor and handler registered under name.
func (r *Registry) Get(name string) (Descriptor, Handler, error) {
	e, ok := r.byName[name]
	if !ok {
		return Descriptor{}, nil, &UnknownToolError{Name: name}
	}
	return e.desc, e.handler, nil
}

// All yields descriptors in registration order. The sequence can be ranged
// over any number of times.
func (r *Registry) All() iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		for _, name := range r.order {
			if !yield(r.byName[name].desc) {
				return
			}
		}
	}
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

func cloneDescriptor(d Descriptor) Descriptor {
	d.InputSchema = cloneSchema(d.InputSchema)
	return d
}

func cloneSchema(s Schema) Schema {
	if s.Enum != nil {
		s.Enum = append([]string(nil), s.Enum...)
	}
	if s.Minimum != nil {
		v := *s.Minimum
		s.Minimum = &v
	}
	if s.Maximum != nil {
		v := *s.Maximum
		s.Maximum = &v
	}
	if s.Items != nil {
		items := cloneSchema(*s.Items)
		s.Items = &items
	}
	if s.Properties != nil {
		props := make([]Property, len(s.Properties))
		for i, p := range s.Properties {
			p.Schema = cloneSchema(p.Schema)
			props[i] = p
		}
		s.Properties = props
	}
	return s
}
