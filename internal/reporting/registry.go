// Package reporting keeps track of which tasks produce reports and which
// report slots each of them owns.
package reporting

import (
	"sync"
)

// Slot is one named, independently toggleable report owned by a producer.
type Slot struct {
	Name string
	// Enabled is evaluated lazily, every time it is consulted. Nil means enabled.
	Enabled func() bool
	// Location resolves the report's output path. It is called at execution
	// time; a nil resolver marks the slot as misconfigured.
	Location func() (string, error)
}

// IsEnabled evaluates the slot's enabled supplier.
func (s Slot) IsEnabled() bool {
	return s.Enabled == nil || s.Enabled()
}

// Producer is a task that may emit one or more reports.
type Producer struct {
	TaskID   string
	TestType string // e.g. "unit-test", "integration-test"; empty when not applicable
	Slots    []Slot
}

// Registry maps producer task IDs to their report slots.
// Registration order is preserved and re-registration keeps the original position.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	producers map[string]Producer
	sealed    bool
	late      []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		producers: make(map[string]Producer),
	}
}

// Register stores the slots of a producer, replacing any previous slot set.
// Registering zero slots is a no-op.
func (r *Registry) Register(p Producer) {
	if len(p.Slots) == 0 || p.TaskID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.producers[p.TaskID]; !exists {
		r.order = append(r.order, p.TaskID)
		if r.sealed {
			r.late = append(r.late, p.TaskID)
		}
	}
	p.Slots = append([]Slot(nil), p.Slots...)
	r.producers[p.TaskID] = p
}

// Seal marks the end of the configuration phase. Producers registered after
// Seal are still stored but reported by Late.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Late returns producer IDs first registered after Seal.
func (r *Registry) Late() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.late...)
}

// Get returns the producer registered under taskID.
func (r *Registry) Get(taskID string) (Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[taskID]
	return p, ok
}

// Producers returns every registered producer in registration order.
func (r *Registry) Producers() []Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Producer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.producers[id])
	}
	return out
}

// Len returns the number of registered producers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
