package kernel

import (
	"fmt"

	"example.com/ohwes/kernel/x86"
)

// GDTEntries returns the global descriptor table for layout l, indexed by
// selector index. Code and data segments are flat over 4 GiB. The TSS
// limit ends at the fixed fields so IOMapBase lies past it whatever the
// size of the region reserved for the TSS.
func GDTEntries(l Layout) [GDTLength]x86.SegmentDescriptor {
	var gdt [GDTLength]x86.SegmentDescriptor
	gdt[KernelCS.Index()] = x86.NewSegmentDescriptor(0, x86.MaxLimit, x86.TypeExecRead, x86.KernelPL)
	gdt[KernelDS.Index()] = x86.NewSegmentDescriptor(0, x86.MaxLimit, x86.TypeReadWrite, x86.KernelPL)
	gdt[UserCS.Index()] = x86.NewSegmentDescriptor(0, x86.MaxLimit, x86.TypeExecRead, x86.UserPL)
	gdt[UserDS.Index()] = x86.NewSegmentDescriptor(0, x86.MaxLimit, x86.TypeReadWrite, x86.UserPL)
	gdt[TSSSel.Index()] = x86.NewSystemDescriptor(l.TSS.Base, x86.TaskStateSize-1, x86.TypeTSS)
	gdt[LDTSel.Index()] = x86.NewSystemDescriptor(l.LDT.Base, l.LDT.Size-1, x86.TypeLDT)
	return gdt
}

// InitGDT writes the GDT and its pseudo-descriptor, loads GDTR and reloads
// the segment registers with the kernel selectors.
func InitGDT(mem x86.Memory, l Layout, cpu x86.CPU) error {
	table, err := mem.Region(l.GDT.Base, l.GDT.Size)
	if err != nil {
		return fmt.Errorf("gdt: %w", err)
	}
	regp, err := mem.Region(l.GDTR, x86.DescriptorRegisterSize)
	if err != nil {
		return fmt.Errorf("gdtr: %w", err)
	}

	clear(table)
	for i, d := range GDTEntries(l) {
		b := d.Bytes()
		copy(table[i*x86.DescriptorSize:], b[:])
	}
	gdtr := x86.NewDescriptorRegister(l.GDT.Base, l.GDT.Size)
	b := gdtr.Bytes()
	copy(regp, b[:])

	cpu.LoadGDT(x86.DecodeDescriptorRegister(regp))
	cpu.LoadSegments(x86.SegmentRegisters{
		CS: KernelCS,
		DS: KernelDS,
		SS: KernelDS,
		ES: KernelDS,
		FS: x86.NullSelector,
		GS: x86.NullSelector,
	})
	return nil
}

// InitLDT clears the local descriptor table and loads LDTR. The LDT stays
// empty; it exists because the TSS names it.
func InitLDT(mem x86.Memory, l Layout, cpu x86.CPU) error {
	if err := mem.Zero(l.LDT.Base, l.LDT.Size); err != nil {
		return fmt.Errorf("ldt: %w", err)
	}
	cpu.LoadLDT(LDTSel)
	return nil
}

// TaskState returns the TSS contents for layout l: the ring 0 stack used on
// entry from ring 3 and no I/O permission bitmap.
func TaskState(l Layout) x86.TaskState {
	return x86.TaskState{
		ESP0:      l.KernelStack,
		SS0:       KernelDS,
		LDT:       LDTSel,
		IOMapBase: x86.TaskStateSize,
	}
}

// InitTSS writes the task state segment and loads TR.
func InitTSS(mem x86.Memory, l Layout, cpu x86.CPU) error {
	raw, err := mem.Region(l.TSS.Base, l.TSS.Size)
	if err != nil {
		return fmt.Errorf("tss: %w", err)
	}
	if err := TaskState(l).Encode(raw); err != nil {
		return fmt.Errorf("tss: %w", err)
	}
	cpu.LoadTaskRegister(TSSSel)
	return nil
}
