// Package portio provides 8-bit port I/O and the discipline every driver
// follows for multi-step register access: the address-select write and the
// data access of a register pair run with interrupts masked, so no handler can
// touch the same pair in between.
package portio

// Ports is the sole hardware primitive drivers are built on (inb/outb).
type Ports interface {
	ReadPort(port uint16) uint8
	WritePort(port uint16, v uint8)
}

// InterruptMasker saves and restores the CPU interrupt-enable state
// (pushf; cli / popf).
type InterruptMasker interface {
	// DisableInterrupts masks interrupts and reports whether they were
	// enabled before the call.
	DisableInterrupts() bool
	// RestoreInterrupts puts the interrupt-enable state back to what
	// DisableInterrupts reported.
	RestoreInterrupts(enabled bool)
}

// Guard is an acquired critical section. The zero value is not usable; get
// one from Acquire.
type Guard struct {
	m        InterruptMasker
	enabled  bool
	released bool
}

// Acquire masks interrupts and records the previous state.
func Acquire(m InterruptMasker) *Guard {
	return &Guard{m: m, enabled: m.DisableInterrupts()}
}

// Release restores the interrupt state found by Acquire. Calling it more than
// once is a no-op, so it is safe to defer alongside an explicit early release.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.m.RestoreInterrupts(g.enabled)
}

// Critical runs fn with interrupts masked and restores the previous state on
// every exit path, including a panic in fn.
func Critical(m InterruptMasker, fn func()) {
	g := Acquire(m)
	defer g.Release()
	fn()
}

// IndexedRegister is a register file reached through an address port and a
// data port, such as the VGA CRTC (0x3D4/0x3D5).
type IndexedRegister struct {
	Ports Ports
	Mask  InterruptMasker
	Addr  uint16
	Data  uint16
}

// Read selects index and reads the data port.
func (r IndexedRegister) Read(index uint8) (v uint8) {
	Critical(r.Mask, func() {
		r.Ports.WritePort(r.Addr, index)
		v = r.Ports.ReadPort(r.Data)
	})
	return v
}

// Write selects index and writes v to the data port.
func (r IndexedRegister) Write(index, v uint8) {
	Critical(r.Mask, func() {
		r.Ports.WritePort(r.Addr, index)
		r.Ports.WritePort(r.Data, v)
	})
}

// Modify does a read-modify-write of index inside a single critical section.
func (r IndexedRegister) Modify(index uint8, fn func(uint8) uint8) {
	Critical(r.Mask, func() {
		r.Ports.WritePort(r.Addr, index)
		v := r.Ports.ReadPort(r.Data)
		r.Ports.WritePort(r.Addr, index)
		r.Ports.WritePort(r.Data, fn(v))
	})
}
