package x86

import "encoding/binary"

// GateKind selects how the CPU enters a handler through an IDT slot.
type GateKind uint8

const (
	// InterruptGate clears IF on entry so the handler runs with further
	// maskable interrupts disabled.
	InterruptGate GateKind = 0xE
	// TrapGate leaves IF untouched on entry.
	TrapGate GateKind = 0xF
)

func (k GateKind) String() string {
	switch k {
	case InterruptGate:
		return "interrupt"
	case TrapGate:
		return "trap"
	}
	return "invalid"
}

// GateDescriptor is a 32-bit IDT entry:
//
//	OffsetLow:   bits 0-15 of the handler entry address.
//	Selector:    code segment the handler runs in.
//	Reserved:    always zero.
//	TypeAttr:    gate type (4 bits), 0, DPL (2 bits), P (1 bit).
//	OffsetHigh:  bits 16-31 of the handler entry address.
type GateDescriptor struct {
	OffsetLow  uint16
	Selector   Selector
	Reserved   uint8
	TypeAttr   uint8
	OffsetHigh uint16
}

// NewGateDescriptor creates a present gate. dpl is the lowest privilege that
// may reach the gate with a software INT instruction; hardware interrupts and
// exceptions ignore it.
func NewGateDescriptor(kind GateKind, sel Selector, dpl PrivilegeLevel, handler uint32) GateDescriptor {
	return GateDescriptor{
		OffsetLow:  uint16(handler & 0xFFFF),
		Selector:   sel,
		TypeAttr:   accessPresent | uint8(dpl&3)<<5 | uint8(kind&0x0F),
		OffsetHigh: uint16(handler >> 16),
	}
}

// NewTrapGate is a shorthand for NewGateDescriptor(TrapGate, ...).
func NewTrapGate(sel Selector, dpl PrivilegeLevel, handler uint32) GateDescriptor {
	return NewGateDescriptor(TrapGate, sel, dpl, handler)
}

// NewInterruptGate is a shorthand for NewGateDescriptor(InterruptGate, ...).
func NewInterruptGate(sel Selector, dpl PrivilegeLevel, handler uint32) GateDescriptor {
	return NewGateDescriptor(InterruptGate, sel, dpl, handler)
}

// Offset returns the handler address.
func (g GateDescriptor) Offset() uint32 {
	return uint32(g.OffsetLow) | uint32(g.OffsetHigh)<<16
}

// Kind returns the gate type.
func (g GateDescriptor) Kind() GateKind { return GateKind(g.TypeAttr & 0x0F) }

// DPL returns the lowest privilege allowed to reach g with INT n.
func (g GateDescriptor) DPL() PrivilegeLevel { return PrivilegeLevel(g.TypeAttr>>5) & 3 }

// Present reports whether the P bit is set.
func (g GateDescriptor) Present() bool { return g.TypeAttr&accessPresent != 0 }

// IsZero reports whether g is an empty IDT slot.
func (g GateDescriptor) IsZero() bool { return g == GateDescriptor{} }

// Bytes returns the little-endian in-memory encoding of g.
func (g GateDescriptor) Bytes() [DescriptorSize]byte {
	var b [DescriptorSize]byte
	binary.LittleEndian.PutUint16(b[0:], g.OffsetLow)
	binary.LittleEndian.PutUint16(b[2:], uint16(g.Selector))
	b[4] = g.Reserved
	b[5] = g.TypeAttr
	binary.LittleEndian.PutUint16(b[6:], g.OffsetHigh)
	return b
}

// DecodeGateDescriptor parses the 8-byte encoding at the start of b.
func DecodeGateDescriptor(b []byte) GateDescriptor {
	_ = b[DescriptorSize-1]
	return GateDescriptor{
		OffsetLow:  binary.LittleEndian.Uint16(b[0:]),
		Selector:   Selector(binary.LittleEndian.Uint16(b[2:])),
		Reserved:   b[4],
		TypeAttr:   b[5],
		OffsetHigh: binary.LittleEndian.Uint16(b[6:]),
	}
}
