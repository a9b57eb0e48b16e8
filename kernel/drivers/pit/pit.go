// Package pit programs channel 0 of the 8254 interval timer, the source of
// IRQ 0.
package pit

import "example.com/ohwes/kernel/portio"

const (
	PortChannel0 uint16 = 0x40
	PortCommand  uint16 = 0x43

	// InputHz is the frequency of the timer's input clock.
	InputHz = 1193182
)

const (
	cmdLatch0   uint8 = 0x00 // channel 0, counter latch
	cmdRateGen0 uint8 = 0x34 // channel 0, lobyte/hibyte, mode 2
	cmdOneShot0 uint8 = 0x30 // channel 0, lobyte/hibyte, mode 0
)

const maxDivisor = 0x10000

// Timer is channel 0 of the 8254.
type Timer struct {
	ports  portio.Ports
	masker portio.InterruptMasker
}

// New returns the timer reached through p. Multi-byte accesses run with
// interrupts masked by m.
func New(p portio.Ports, m portio.InterruptMasker) *Timer {
	return &Timer{ports: p, masker: m}
}

// Divisor returns the reload value giving the closest rate to hz, clamped
// to what the counter can hold.
func Divisor(hz uint32) uint32 {
	if hz == 0 {
		return maxDivisor
	}
	d := (InputHz + hz/2) / hz
	switch {
	case d < 1:
		return 1
	case d > maxDivisor:
		return maxDivisor
	}
	return d
}

// SetPeriodic makes IRQ 0 fire at about hz and returns the divisor used.
func (t *Timer) SetPeriodic(hz uint32) uint32 {
	d := Divisor(hz)
	t.load(cmdRateGen0, d)
	return d
}

// OneShot makes IRQ 0 fire once after clocks input cycles.
func (t *Timer) OneShot(clocks uint32) {
	if clocks == 0 || clocks > maxDivisor {
		clocks = maxDivisor
	}
	t.load(cmdOneShot0, clocks)
}

// load writes the mode and the 16-bit reload value. A divisor of 65536 is
// written as 0.
func (t *Timer) load(cmd uint8, divisor uint32) {
	portio.Critical(t.masker, func() {
		t.ports.WritePort(PortCommand, cmd)
		t.ports.WritePort(PortChannel0, uint8(divisor))
		t.ports.WritePort(PortChannel0, uint8(divisor>>8))
	})
}

// Count latches and reads the current value of the counter.
func (t *Timer) Count() (v uint16) {
	portio.Critical(t.masker, func() {
		t.ports.WritePort(PortCommand, cmdLatch0)
		lo := t.ports.ReadPort(PortChannel0)
		hi := t.ports.ReadPort(PortChannel0)
		v = uint16(hi)<<8 | uint16(lo)
	})
	return v
}
