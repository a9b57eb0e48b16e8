package sim

import "example.com/ohwes/kernel/interrupt"

// ThunkStride is the distance between two entry stubs.
const ThunkStride = 16

// DefaultThunkBase is where the simulated entry stubs start. Nothing is
// stored there; the addresses only have to be distinct and recognizable.
const DefaultThunkBase uint32 = 0x10000

// Thunks lays out one entry stub per vector, stub v at Base + v*ThunkStride.
// It implements interrupt.Thunks, and the CPU uses Resolve to find out which
// stub a gate jumps to.
type Thunks struct {
	Base uint32
}

// Exception returns the address of the stub for exception n.
func (t Thunks) Exception(n uint8) uint32 {
	return t.Base + uint32(interrupt.ExceptionBase+int(n))*ThunkStride
}

// IRQ returns the address of the stub for IRQ line.
func (t Thunks) IRQ(line uint8) uint32 {
	return t.Base + uint32(interrupt.IRQBase+int(line))*ThunkStride
}

// Syscall returns the address of the system call stub.
func (t Thunks) Syscall() uint32 {
	return t.Base + interrupt.SyscallVector*ThunkStride
}

// Resolve returns the vector number the stub at addr pushes. ok is false if
// addr is not the start of a stub.
func (t Thunks) Resolve(addr uint32) (vector uint8, ok bool) {
	if addr < t.Base {
		return 0, false
	}
	off := addr - t.Base
	if off%ThunkStride != 0 || off/ThunkStride >= interrupt.NumVectors {
		return 0, false
	}
	return uint8(off / ThunkStride), true
}
