package interrupt

import (
	"fmt"

	"example.com/ohwes/kernel/x86"
)

// TableSize is the size in bytes of a full IDT.
const TableSize = NumVectors * x86.DescriptorSize

// Thunks supplies the entry addresses of the per-vector stubs that save the
// CPU state into an x86.Frame and call Dispatch. The stubs themselves are
// outside the portable kernel.
type Thunks interface {
	Exception(n uint8) uint32
	IRQ(line uint8) uint32
	Syscall() uint32
}

// Table says where the IDT lives.
type Table struct {
	Base   uint32       // physical address of the 256 gates
	RegPtr uint32       // physical address of the IDTR pseudo-descriptor
	CS     x86.Selector // code segment every handler runs in
}

// GateFor returns the gate that vector gets, or the zero gate when the
// vector is left unhandled. Exceptions get kernel trap gates, IRQs kernel
// interrupt gates and the system call a trap gate ring 3 may invoke.
func GateFor(vector int, cs x86.Selector, thunks Thunks) x86.GateDescriptor {
	switch Classify(vector) {
	case ClassException:
		return x86.NewTrapGate(cs, x86.KernelPL, thunks.Exception(uint8(vector-ExceptionBase)))
	case ClassIRQ:
		return x86.NewInterruptGate(cs, x86.KernelPL, thunks.IRQ(uint8(vector-IRQBase)))
	case ClassSyscall:
		return x86.NewTrapGate(cs, x86.UserPL, thunks.Syscall())
	}
	return x86.GateDescriptor{}
}

// InitIDT zero-fills the table, writes one gate per handled vector, stores
// the IDTR pseudo-descriptor at t.RegPtr and loads it. The table is complete
// in memory before LoadIDT runs, so no partially written gate is ever live.
func InitIDT(mem x86.Memory, t Table, thunks Thunks, cpu x86.CPU) error {
	idt, err := mem.Region(t.Base, TableSize)
	if err != nil {
		return fmt.Errorf("idt: %w", err)
	}
	regp, err := mem.Region(t.RegPtr, x86.DescriptorRegisterSize)
	if err != nil {
		return fmt.Errorf("idtr: %w", err)
	}

	clear(idt)
	for v := 0; v < NumVectors; v++ {
		g := GateFor(v, t.CS, thunks)
		if g.IsZero() {
			continue
		}
		b := g.Bytes()
		copy(idt[v*x86.DescriptorSize:], b[:])
	}

	idtr := x86.NewDescriptorRegister(t.Base, TableSize)
	b := idtr.Bytes()
	copy(regp, b[:])
	cpu.LoadIDT(x86.DecodeDescriptorRegister(regp))
	return nil
}

// ReadGate returns the gate stored for vector in the table at base.
func ReadGate(mem x86.Memory, base uint32, vector int) (x86.GateDescriptor, error) {
	if vector < 0 || vector >= NumVectors {
		return x86.GateDescriptor{}, fmt.Errorf("idt: vector %d out of range", vector)
	}
	raw, err := mem.Region(base+uint32(vector)*x86.DescriptorSize, x86.DescriptorSize)
	if err != nil {
		return x86.GateDescriptor{}, err
	}
	return x86.DecodeGateDescriptor(raw), nil
}
