package task

import (
	"fmt"
	"sync"
)

// Registry maps task names to descriptors in declaration order.
// It is append-only; Freeze seals it once startup is complete.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]Descriptor
	order  []string
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Descriptor)}
}

// Register adds a descriptor. Returns ErrDuplicateTask if the name exists.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %s", ErrRegistryFrozen, d.Name)
	}
	if _, exists := r.tasks[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, d.Name)
	}
	r.tasks[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Resolve returns the descriptor for name. Returns ErrUnknownTask if absent.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tasks[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return d, nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Names returns task names in declaration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
