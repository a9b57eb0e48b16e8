package x86

import (
	"encoding/binary"
	"fmt"
)

// TaskStateSize is the size of a 32-bit TSS without an I/O permission bitmap.
const TaskStateSize = 104

// Architectural offsets of the TSS fields the kernel uses.
const (
	tssESP0      = 0x04
	tssSS0       = 0x08
	tssLDT       = 0x60
	tssIOMapBase = 0x66
)

// TaskState holds the TSS fields used on a privilege transition. Hardware task
// switching is not used, so everything else in the record stays zero.
type TaskState struct {
	ESP0 uint32   // ring 0 stack pointer loaded on entry from ring 3
	SS0  Selector // ring 0 stack segment
	LDT  Selector // LDT selector (required even though the LDT is empty)

	// IOMapBase is the offset of the I/O permission bitmap. A value at or
	// past the TSS limit means there is no bitmap and ring 3 port access
	// always faults.
	IOMapBase uint16
}

// Encode zero-fills b and writes the task state at its architectural offsets.
func (t TaskState) Encode(b []byte) error {
	if len(b) < TaskStateSize {
		return fmt.Errorf("x86: task state needs %d bytes, got %d", TaskStateSize, len(b))
	}
	clear(b[:TaskStateSize])
	binary.LittleEndian.PutUint32(b[tssESP0:], t.ESP0)
	binary.LittleEndian.PutUint16(b[tssSS0:], uint16(t.SS0))
	binary.LittleEndian.PutUint16(b[tssLDT:], uint16(t.LDT))
	binary.LittleEndian.PutUint16(b[tssIOMapBase:], t.IOMapBase)
	return nil
}

// DecodeTaskState reads the kernel-relevant fields back out of b.
func DecodeTaskState(b []byte) TaskState {
	_ = b[TaskStateSize-1]
	return TaskState{
		ESP0:      binary.LittleEndian.Uint32(b[tssESP0:]),
		SS0:       Selector(binary.LittleEndian.Uint16(b[tssSS0:])),
		LDT:       Selector(binary.LittleEndian.Uint16(b[tssLDT:])),
		IOMapBase: binary.LittleEndian.Uint16(b[tssIOMapBase:]),
	}
}
