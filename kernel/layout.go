package kernel

import (
	"errors"
	"fmt"
	"sort"

	"example.com/ohwes/kernel/interrupt"
	"example.com/ohwes/kernel/x86"
)

// Selectors of the GDT entries the kernel installs. Index 1 is left zero.
const (
	KernelCS x86.Selector = 0x10
	KernelDS x86.Selector = 0x18
	UserCS   x86.Selector = 0x23
	UserDS   x86.Selector = 0x2B
	TSSSel   x86.Selector = 0x30
	LDTSel   x86.Selector = 0x38
)

// Table lengths in descriptors.
const (
	GDTLength = 8
	LDTLength = 4
)

// ErrBadLayout is wrapped by every error Validate returns.
var ErrBadLayout = errors.New("kernel: bad physical layout")

// Region is a block of physical memory.
type Region struct {
	Base uint32 `json:"base"`
	Size uint32 `json:"size"`
}

// End returns the first address past r.
func (r Region) End() uint64 { return uint64(r.Base) + uint64(r.Size) }

func (r Region) overlaps(o Region) bool {
	return uint64(r.Base) < o.End() && uint64(o.Base) < r.End()
}

// Layout places the descriptor tables, the task state and the two
// pseudo-descriptors in physical memory. The addresses are a fixed contract
// with the entry code and the boot loader; DefaultLayout returns them.
type Layout struct {
	IDT Region `json:"idt"`
	GDT Region `json:"gdt"`
	LDT Region `json:"ldt"`
	TSS Region `json:"tss"`

	GDTR uint32 `json:"gdtr"` // GDTR pseudo-descriptor
	IDTR uint32 `json:"idtr"` // IDTR pseudo-descriptor

	// KernelStack is the ring 0 stack top loaded on a trap from ring 3.
	KernelStack uint32 `json:"kernel_stack"`
}

// DefaultLayout returns the standard OHWES memory map.
func DefaultLayout() Layout {
	return Layout{
		IDT:         Region{Base: 0x0800, Size: interrupt.TableSize},
		GDT:         Region{Base: 0x1000, Size: GDTLength * x86.DescriptorSize},
		LDT:         Region{Base: 0x1040, Size: LDTLength * x86.DescriptorSize},
		TSS:         Region{Base: 0x1060, Size: x86.TaskStateSize},
		GDTR:        0x10D0,
		IDTR:        0x10D8,
		KernelStack: 0x90000,
	}
}

// Validate checks that every object fits in memSize bytes, that no two
// objects overlap and that the tables have the sizes the kernel fills.
func (l Layout) Validate(memSize uint32) error {
	named := []struct {
		name string
		r    Region
	}{
		{"idt", l.IDT},
		{"gdt", l.GDT},
		{"ldt", l.LDT},
		{"tss", l.TSS},
		{"gdtr", Region{l.GDTR, x86.DescriptorRegisterSize}},
		{"idtr", Region{l.IDTR, x86.DescriptorRegisterSize}},
	}

	if l.IDT.Size != interrupt.TableSize {
		return fmt.Errorf("%w: idt size %d, want %d", ErrBadLayout, l.IDT.Size, interrupt.TableSize)
	}
	if l.GDT.Size%x86.DescriptorSize != 0 || l.GDT.Size < GDTLength*x86.DescriptorSize {
		return fmt.Errorf("%w: gdt size %d must be a multiple of 8 holding at least %d entries", ErrBadLayout, l.GDT.Size, GDTLength)
	}
	if l.GDT.Size > x86.MaxTableSize {
		return fmt.Errorf("%w: gdt size %d exceeds %d", ErrBadLayout, l.GDT.Size, x86.MaxTableSize)
	}
	if l.LDT.Size == 0 || l.LDT.Size%x86.DescriptorSize != 0 {
		return fmt.Errorf("%w: ldt size %d is not a non-zero multiple of 8", ErrBadLayout, l.LDT.Size)
	}
	if l.TSS.Size < x86.TaskStateSize {
		return fmt.Errorf("%w: tss size %d, want at least %d", ErrBadLayout, l.TSS.Size, x86.TaskStateSize)
	}

	for _, n := range named {
		if n.r.End() > uint64(memSize) {
			return fmt.Errorf("%w: %s [0x%x, 0x%x) outside %d bytes of memory", ErrBadLayout, n.name, n.r.Base, n.r.End(), memSize)
		}
	}
	sorted := append(named[:0:0], named...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].r.Base < sorted[j].r.Base })
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].r.overlaps(sorted[i].r) {
			return fmt.Errorf("%w: %s overlaps %s", ErrBadLayout, sorted[i-1].name, sorted[i].name)
		}
	}

	if l.KernelStack == 0 || l.KernelStack > memSize || l.KernelStack%4 != 0 {
		return fmt.Errorf("%w: kernel stack top 0x%x", ErrBadLayout, l.KernelStack)
	}
	return nil
}
