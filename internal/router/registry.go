package router

import (
	"context"
	"slices"
	"sync"

	"github.com/LavishGent/routewise/internal/types"
)

// Call carries the arguments of one routed operation.
type Call struct {
	Operation string
	Args      []any
	Kwargs    map[string]any
}

// Implementation is one call target of a vendor.
type Implementation func(ctx context.Context, call Call) (string, error)

type registration struct {
	vendor string
	impls  []Implementation
}

// Registry maps operations to vendor implementations. Vendors are kept in
// registration order.
type Registry struct {
	mu          sync.RWMutex
	ops         map[string][]registration
	unavailable map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ops:         make(map[string][]registration),
		unavailable: make(map[string]bool),
	}
}

// Register adds impls for vendor on operation. Registering a vendor again
// replaces its implementations without changing its position.
func (r *Registry) Register(operation, vendor string, impls ...Implementation) error {
	if err := types.ValidateName(operation); err != nil {
		return err
	}
	if err := types.ValidateName(vendor); err != nil {
		return err
	}
	cleaned := make([]Implementation, 0, len(impls))
	for _, impl := range impls {
		if impl != nil {
			cleaned = append(cleaned, impl)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.ops[operation]
	for i := range regs {
		if regs[i].vendor == vendor {
			regs[i].impls = cleaned
			return nil
		}
	}
	r.ops[operation] = append(regs, registration{vendor: vendor, impls: cleaned})
	return nil
}

// SetAvailable marks vendor as usable or not. Unavailable vendors are
// skipped without counting as failures.
func (r *Registry) SetAvailable(vendor string, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if available {
		delete(r.unavailable, vendor)
	} else {
		r.unavailable[vendor] = true
	}
}

// Available reports whether vendor is usable. Unknown vendors are available.
func (r *Registry) Available(vendor string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.unavailable[vendor]
}

// Vendors returns the vendors registered for operation in registration order.
func (r *Registry) Vendors(operation string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := r.ops[operation]
	out := make([]string, len(regs))
	for i, reg := range regs {
		out[i] = reg.vendor
	}
	return out
}

// Implementations returns vendor's implementations for operation.
func (r *Registry) Implementations(operation, vendor string) ([]Implementation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.ops[operation] {
		if reg.vendor == vendor {
			return slices.Clone(reg.impls), true
		}
	}
	return nil, false
}

// Operations returns the operations with at least one registered vendor.
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ops))
	for op := range r.ops {
		out = append(out, op)
	}
	slices.Sort(out)
	return out
}
