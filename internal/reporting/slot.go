package reporting

import "sync/atomic"

// Fixed returns a location resolver for a path known at configuration time.
func Fixed(path string) func() (string, error) {
	return func() (string, error) {
		return path, nil
	}
}

// Toggle is a mutable enabled flag that can be changed after registration.
type Toggle struct {
	on atomic.Bool
}

// NewToggle creates a toggle in the given state.
func NewToggle(on bool) *Toggle {
	t := &Toggle{}
	t.on.Store(on)
	return t
}

// Set changes the toggle state.
func (t *Toggle) Set(on bool) { t.on.Store(on) }

// Enabled is the supplier to plug into Slot.Enabled.
func (t *Toggle) Enabled() bool { return t.on.Load() }
