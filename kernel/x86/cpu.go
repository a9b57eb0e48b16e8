// Package x86 describes the 32-bit protected-mode structures the kernel
// builds (segment descriptors, gates, the task state segment, descriptor
// table registers) and the privileged CPU operations that install them.
package x86

// CPU is the set of privileged instructions the kernel core issues. On the
// target each method is a single instruction (or a short fixed sequence); the
// simulator in package sim implements it in software.
type CPU interface {
	// LoadGDT loads GDTR (lgdt).
	LoadGDT(DescriptorRegister)
	// LoadIDT loads IDTR (lidt).
	LoadIDT(DescriptorRegister)
	// LoadLDT loads LDTR with a GDT selector (lldt).
	LoadLDT(Selector)
	// LoadTaskRegister loads TR with a GDT selector (ltr).
	LoadTaskRegister(Selector)
	// LoadSegments reloads CS with a far jump and the data segment
	// registers with moves.
	LoadSegments(SegmentRegisters)

	// ControlRegisters reads CR0, CR2, CR3 and CR4.
	ControlRegisters() ControlRegisters

	// DisableInterrupts clears IF and reports whether it was set before
	// (pushf; cli).
	DisableInterrupts() bool
	// RestoreInterrupts sets IF back to the state DisableInterrupts
	// reported (popf).
	RestoreInterrupts(enabled bool)
	// EnableInterrupts sets IF (sti).
	EnableInterrupts()

	// Halt stops the CPU for good. It never returns.
	Halt()
}
