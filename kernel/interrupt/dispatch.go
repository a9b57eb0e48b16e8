package interrupt

import (
	"sync"

	"example.com/ohwes/kernel/x86"
)

// Handler runs for one vector. It reads the frame but never changes it.
// Exception handlers may not return.
type Handler func(*x86.Frame)

// Dispatcher maps vector numbers to handlers. The entry thunks call
// Dispatch with the frame they built.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers [NumVectors]Handler

	// Fallback runs for vectors with no handler. When nil such vectors are
	// ignored.
	Fallback Handler
}

// NewDispatcher returns an empty registration table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register installs h for vector, replacing any previous handler. A nil h
// removes the registration.
func (d *Dispatcher) Register(vector uint8, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[vector] = h
}

// Handler returns the handler registered for vector.
func (d *Dispatcher) Handler(vector uint8) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[vector]
}

// Dispatch runs the handler for f.Vector. The lock is not held while the
// handler runs, so handlers may register others.
func (d *Dispatcher) Dispatch(f *x86.Frame) {
	h := d.Fallback
	if f.Vector < NumVectors {
		if r := d.Handler(uint8(f.Vector)); r != nil {
			h = r
		}
	}
	if h != nil {
		h(f)
	}
}
