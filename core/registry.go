// Package core implements the process-wide Class & Meta Registry: a
// name-keyed table of object factories plus their reflective MetaObject
// descriptors, the Go rendering of the spec's C1 component. The shape
// (name -> handler map behind an RWMutex, with a Must-variant that panics
// and a package-level default registry) follows this codebase's own
// action-dispatch registry.
package core

import (
	"fmt"
	"sync"
)

// NewFunc constructs a zero-value instance of a registered class.
type NewFunc func() any

// ClassDescriptor pairs a factory with its introspection record.
type ClassDescriptor struct {
	Name string
	New  NewFunc
	Meta *MetaObject
}

// Registry maps class names to ClassDescriptors. The zero value is usable.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*ClassDescriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*ClassDescriptor)}
}

// Register adds a class descriptor, rejecting a duplicate name.
func (r *Registry) Register(desc *ClassDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.classes[desc.Name]; exists {
		return fmt.Errorf("class %s already registered", desc.Name)
	}
	r.classes[desc.Name] = desc
	return nil
}

// MustRegister registers desc and panics on failure. Intended for use from
// package init() functions, the Go analogue of C++ static initialisation.
func (r *Registry) MustRegister(desc *ClassDescriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Create returns a new zero-value instance of the named class, or nil if
// unregistered.
func (r *Registry) Create(name string) any {
	d := r.Find(name)
	if d == nil {
		return nil
	}
	return d.New()
}

// Find returns the descriptor for name, or nil.
func (r *Registry) Find(name string) *ClassDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classes[name]
}

// Meta is a convenience accessor over Find(name).Meta.
func (r *Registry) Meta(name string) *MetaObject {
	d := r.Find(name)
	if d == nil {
		return nil
	}
	return d.Meta
}

// Names returns every registered class name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for n := range r.classes {
		names = append(names, n)
	}
	return names
}

// Default is the process-wide registry populated by every concrete
// datamodel type's package init(). Mirrors this codebase's
// DefaultRegistry singleton.
var Default = NewRegistry()

// Register registers desc with the default registry.
func Register(desc *ClassDescriptor) error { return Default.Register(desc) }

// MustRegister registers desc with the default registry, panicking on
// failure.
func MustRegister(desc *ClassDescriptor) { Default.MustRegister(desc) }

// Find looks up a class by name in the default registry.
func Find(name string) *ClassDescriptor { return Default.Find(name) }
