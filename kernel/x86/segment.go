package x86

import "encoding/binary"

// DescriptorSize is the size in bytes of every GDT, LDT and IDT entry.
const DescriptorSize = 8

// SegmentType is the 4-bit type field of a segment descriptor. Its meaning
// depends on the S bit: code/data descriptors and system descriptors share the
// same numeric space.
type SegmentType uint8

const (
	// TypeReadWrite is a read/write data segment.
	TypeReadWrite SegmentType = 0x2
	// TypeExecRead is an execute/read code segment.
	TypeExecRead SegmentType = 0xA

	// TypeLDT is the system type of a local descriptor table descriptor.
	TypeLDT SegmentType = 0x2
	// TypeTSS is the system type of an available 32-bit task state segment.
	TypeTSS SegmentType = 0x9
	// TypeTSSBusy is set by the CPU once the task register has been loaded.
	TypeTSSBusy SegmentType = 0xB
)

// PrivilegeLevel is a CPU protection ring.
type PrivilegeLevel uint8

const (
	KernelPL PrivilegeLevel = 0
	UserPL   PrivilegeLevel = 3
)

// Access byte and flag nibble bits.
const (
	accessPresent  uint8 = 0x80
	accessCodeData uint8 = 0x10 // S bit: 1 for code/data, 0 for system

	flagGranularity uint8 = 0x80 // limit is in 4 KiB units
	flagSize32      uint8 = 0x40 // D/B: 32-bit default operand size

	// MaxLimit is the largest value the 20-bit limit field can hold.
	MaxLimit uint32 = 0xFFFFF
)

// SegmentDescriptor represents a single 64-bit GDT/LDT descriptor.
// The layout must match what the processor expects:
//
//	LimitLow:   bits 0-15 of the segment limit.
//	BaseLow:    bits 0-15 of the segment base address.
//	BaseMid:    bits 16-23 of the segment base address.
//	Access:     type (4 bits), S (1 bit), DPL (2 bits), P (1 bit).
//	LimitHigh:  bits 16-19 of the limit in the lower nibble,
//	            flags (G, D/B, L, AVL) in the upper nibble.
//	BaseHigh:   bits 24-31 of the segment base address.
type SegmentDescriptor struct {
	LimitLow  uint16
	BaseLow   uint16
	BaseMid   uint8
	Access    uint8
	LimitHigh uint8
	BaseHigh  uint8
}

// NewSegmentDescriptor creates a present code or data descriptor with 4 KiB
// granularity and a 32-bit default operand size. limit is the raw 20-bit
// value, so 0xFFFFF covers the full 4 GiB address space.
func NewSegmentDescriptor(base, limit uint32, typ SegmentType, dpl PrivilegeLevel) SegmentDescriptor {
	access := accessPresent | uint8(dpl&3)<<5 | accessCodeData | uint8(typ&0x0F)
	return newDescriptor(base, limit, access, flagGranularity|flagSize32)
}

// NewSystemDescriptor creates a present LDT or TSS descriptor. System
// descriptors are only loadable by ring 0 and use byte granularity, so limit
// is the table size minus one.
func NewSystemDescriptor(base, limit uint32, typ SegmentType) SegmentDescriptor {
	access := accessPresent | uint8(typ&0x0F)
	return newDescriptor(base, limit, access, 0)
}

func newDescriptor(base, limit uint32, access, flags uint8) SegmentDescriptor {
	return SegmentDescriptor{
		LimitLow:  uint16(limit & 0xFFFF),
		BaseLow:   uint16(base & 0xFFFF),
		BaseMid:   uint8(base >> 16),
		Access:    access,
		LimitHigh: uint8((limit>>16)&0x0F) | (flags & 0xF0),
		BaseHigh:  uint8(base >> 24),
	}
}

// Base returns the 32-bit linear base address.
func (d SegmentDescriptor) Base() uint32 {
	return uint32(d.BaseLow) | uint32(d.BaseMid)<<16 | uint32(d.BaseHigh)<<24
}

// Limit returns the raw 20-bit limit field.
func (d SegmentDescriptor) Limit() uint32 {
	return uint32(d.LimitLow) | uint32(d.LimitHigh&0x0F)<<16
}

// EffectiveLimit returns the offset of the last addressable byte, taking the
// granularity flag into account.
func (d SegmentDescriptor) EffectiveLimit() uint32 {
	if d.Granular() {
		return d.Limit()<<12 | 0xFFF
	}
	return d.Limit()
}

// Type returns the type field of the access byte.
func (d SegmentDescriptor) Type() SegmentType { return SegmentType(d.Access & 0x0F) }

// DPL returns the descriptor privilege level.
func (d SegmentDescriptor) DPL() PrivilegeLevel { return PrivilegeLevel(d.Access>>5) & 3 }

// Present reports whether the P bit is set.
func (d SegmentDescriptor) Present() bool { return d.Access&accessPresent != 0 }

// IsSystem reports whether d describes a TSS, LDT or gate rather than code
// or data.
func (d SegmentDescriptor) IsSystem() bool { return d.Access&accessCodeData == 0 }

// Granular reports whether the limit counts 4 KiB pages.
func (d SegmentDescriptor) Granular() bool { return d.LimitHigh&flagGranularity != 0 }

// Is32Bit reports whether the D/B bit is set.
func (d SegmentDescriptor) Is32Bit() bool { return d.LimitHigh&flagSize32 != 0 }

// IsZero reports whether d is the null descriptor.
func (d SegmentDescriptor) IsZero() bool { return d == SegmentDescriptor{} }

// IsCode reports whether d is an executable code segment.
func (d SegmentDescriptor) IsCode() bool {
	return !d.IsSystem() && d.Type()&0x8 != 0
}

// Bytes returns the little-endian in-memory encoding of d.
func (d SegmentDescriptor) Bytes() [DescriptorSize]byte {
	var b [DescriptorSize]byte
	binary.LittleEndian.PutUint16(b[0:], d.LimitLow)
	binary.LittleEndian.PutUint16(b[2:], d.BaseLow)
	b[4] = d.BaseMid
	b[5] = d.Access
	b[6] = d.LimitHigh
	b[7] = d.BaseHigh
	return b
}

// DecodeSegmentDescriptor parses the 8-byte encoding at the start of b.
func DecodeSegmentDescriptor(b []byte) SegmentDescriptor {
	_ = b[DescriptorSize-1]
	return SegmentDescriptor{
		LimitLow:  binary.LittleEndian.Uint16(b[0:]),
		BaseLow:   binary.LittleEndian.Uint16(b[2:]),
		BaseMid:   b[4],
		Access:    b[5],
		LimitHigh: b[6],
		BaseHigh:  b[7],
	}
}

// Selector is a segment selector: descriptor index, table indicator and
// requested privilege level.
type Selector uint16

// NullSelector may be loaded into DS, ES, FS and GS but faults on use.
const NullSelector Selector = 0

// Index returns the descriptor table index the selector refers to.
func (s Selector) Index() int { return int(s >> 3) }

// RPL returns the requested privilege level.
func (s Selector) RPL() PrivilegeLevel { return PrivilegeLevel(s & 3) }

// Local reports whether the selector refers to the LDT instead of the GDT.
func (s Selector) Local() bool { return s&0x4 != 0 }

// Offset returns the byte offset of the selected descriptor in its table.
func (s Selector) Offset() uint32 { return uint32(s.Index()) * DescriptorSize }
