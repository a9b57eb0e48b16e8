package x86

import "encoding/binary"

// DescriptorRegisterSize is the size of the pseudo-descriptor operand of
// LGDT and LIDT.
const DescriptorRegisterSize = 6

// MaxTableSize is the largest table a 16-bit limit can describe.
const MaxTableSize = 0x10000

// DescriptorRegister is the value held by GDTR or IDTR: the linear base of a
// descriptor table and its size minus one.
type DescriptorRegister struct {
	Base  uint32
	Limit uint16
}

// NewDescriptorRegister describes a table of size bytes at base.
func NewDescriptorRegister(base, size uint32) DescriptorRegister {
	return DescriptorRegister{Base: base, Limit: uint16(size - 1)}
}

// Size returns the table size in bytes.
func (r DescriptorRegister) Size() uint32 { return uint32(r.Limit) + 1 }

// Entries returns the number of 8-byte descriptors the table holds.
func (r DescriptorRegister) Entries() int { return int(r.Size() / DescriptorSize) }

// Covers reports whether the descriptor at byte offset off lies within the
// table limit.
func (r DescriptorRegister) Covers(off uint32) bool {
	return off+DescriptorSize-1 <= uint32(r.Limit)
}

// Bytes returns the pseudo-descriptor: 16-bit limit followed by 32-bit base.
func (r DescriptorRegister) Bytes() [DescriptorRegisterSize]byte {
	var b [DescriptorRegisterSize]byte
	binary.LittleEndian.PutUint16(b[0:], r.Limit)
	binary.LittleEndian.PutUint32(b[2:], r.Base)
	return b
}

// DecodeDescriptorRegister parses a pseudo-descriptor.
func DecodeDescriptorRegister(b []byte) DescriptorRegister {
	_ = b[DescriptorRegisterSize-1]
	return DescriptorRegister{
		Limit: binary.LittleEndian.Uint16(b[0:]),
		Base:  binary.LittleEndian.Uint32(b[2:]),
	}
}
