package interrupt

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"example.com/ohwes/kernel/x86"
)

// PanicMessage is printed after the diagnostic dump of a fatal exception.
const PanicMessage = "KERNEL PANIC: unrecoverable exception, system halted"

// FaultCPU is what the exception handler needs from the processor.
type FaultCPU interface {
	ControlRegisters() x86.ControlRegisters
	Halt()
}

// EOISender acknowledges an IRQ at the interrupt controller.
type EOISender interface {
	EndOfInterrupt(line uint8)
}

var (
	headerColor = color.New(color.FgYellow, color.Bold)
	panicColor  = color.New(color.FgRed, color.Bold)
)

// WriteDiagnostic writes the register dump of an exception frame.
func WriteDiagnostic(w io.Writer, f *x86.Frame, cr x86.ControlRegisters) {
	headerColor.Fprintf(w, "Exception 0x%02X! %s\n", f.Vector, ExceptionName(int(f.Vector)))
	fmt.Fprintf(w, "Error Code: %08X\n", f.ErrorCode)
	fmt.Fprintf(w, "EAX=%08X EBX=%08X ECX=%08X EDX=%08X\n", f.EAX, f.EBX, f.ECX, f.EDX)
	fmt.Fprintf(w, "ESI=%08X EDI=%08X EBP=%08X ESP=%08X\n", f.ESI, f.EDI, f.EBP, f.ESP)
	fmt.Fprintf(w, "EIP=%08X\n", f.EIP)
	fmt.Fprintf(w, "CR0=%08X CR2=%08X CR3=%08X CR4=%08X\n", cr.CR0, cr.CR2, cr.CR3, cr.CR4)
	fmt.Fprintf(w, "CS=%02X IOPL=%d EFLAGS=%08X %s\n", f.CS, f.EFlags.IOPL(), uint32(f.EFlags), f.EFlags)
	if f.PrivilegeChanged() {
		fmt.Fprintf(w, "SS=%02X USER ESP=%08X\n", f.UserSS, f.UserESP)
	}
	fmt.Fprintln(w)
}

// ExceptionHandler returns the handler for CPU exceptions: it dumps the
// frame to console and halts for good.
func ExceptionHandler(console io.Writer, cpu FaultCPU) Handler {
	return func(f *x86.Frame) {
		WriteDiagnostic(console, f, cpu.ControlRegisters())
		panicColor.Fprintln(console, PanicMessage)
		cpu.Halt()
	}
}

// IRQHandler returns the placeholder handler for device interrupts. It
// reports the line and acknowledges it at eoi, which may be nil.
func IRQHandler(console io.Writer, eoi EOISender) Handler {
	return func(f *x86.Frame) {
		line, ok := IRQLine(int(f.Vector))
		if !ok {
			fmt.Fprintf(console, "IRQ handler reached by vector 0x%02X\n", f.Vector)
			return
		}
		fmt.Fprintf(console, "Device IRQ %d!\n", line)
		if eoi != nil {
			eoi.EndOfInterrupt(uint8(line))
		}
	}
}

// SyscallHandler returns the handler for the system call trap. No calls are
// implemented yet, so it reports the number requested in EAX.
func SyscallHandler(console io.Writer) Handler {
	return func(f *x86.Frame) {
		fmt.Fprintf(console, "System call %d not implemented!\n", f.EAX)
	}
}

// InstallDefaultHandlers registers ExceptionHandler for every exception
// vector, IRQHandler for every IRQ vector and SyscallHandler for the system
// call vector. Anything else reaching Dispatch is reported as unhandled.
func InstallDefaultHandlers(d *Dispatcher, console io.Writer, cpu FaultCPU, eoi EOISender) {
	exc := ExceptionHandler(console, cpu)
	for v := 0; v < NumExceptions; v++ {
		d.Register(uint8(ExceptionBase+v), exc)
	}
	irq := IRQHandler(console, eoi)
	for l := 0; l < NumIRQs; l++ {
		d.Register(uint8(IRQBase+l), irq)
	}
	d.Register(SyscallVector, SyscallHandler(console))
	d.Fallback = func(f *x86.Frame) {
		fmt.Fprintf(console, "Unhandled interrupt 0x%02X!\n", f.Vector)
	}
}
