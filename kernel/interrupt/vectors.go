// Package interrupt builds the interrupt descriptor table and dispatches the
// exceptions, IRQs and system calls that arrive through it.
package interrupt

import "fmt"

// Vector layout. The three ranges must not overlap.
const (
	ExceptionBase = 0x00
	NumExceptions = 32
	IRQBase       = 0x20
	NumIRQs       = 16
	SyscallVector = 0x80

	// NumVectors is the number of IDT slots.
	NumVectors = 256
)

// Exception vectors referred to by name.
const (
	VecDivideError       = 0x00
	VecDebug             = 0x01
	VecNMI               = 0x02
	VecBreakpoint        = 0x03
	VecInvalidOpcode     = 0x06
	VecDoubleFault       = 0x08
	VecInvalidTSS        = 0x0A
	VecSegmentNotPresent = 0x0B
	VecStackFault        = 0x0C
	VecGeneralProtection = 0x0D
	VecPageFault         = 0x0E
	VecAlignmentCheck    = 0x11
	VecControlProtection = 0x15
	VecVMMCommunication  = 0x1D
	VecSecurityException = 0x1E
)

// Class is the kind of handler a vector is wired to.
type Class int

const (
	ClassUnhandled Class = iota
	ClassException
	ClassIRQ
	ClassSyscall
)

func (c Class) String() string {
	switch c {
	case ClassException:
		return "exception"
	case ClassIRQ:
		return "irq"
	case ClassSyscall:
		return "syscall"
	}
	return "unhandled"
}

// Classify reports which range vector belongs to.
func Classify(vector int) Class {
	switch {
	case vector >= ExceptionBase && vector < ExceptionBase+NumExceptions:
		return ClassException
	case vector >= IRQBase && vector < IRQBase+NumIRQs:
		return ClassIRQ
	case vector == SyscallVector:
		return ClassSyscall
	}
	return ClassUnhandled
}

// IRQLine maps an IRQ vector back to its interrupt controller line.
func IRQLine(vector int) (line int, ok bool) {
	if Classify(vector) != ClassIRQ {
		return 0, false
	}
	return vector - IRQBase, true
}

// HasErrorCode reports whether the CPU pushes an error code for exception
// vector.
func HasErrorCode(vector int) bool {
	switch vector {
	case VecDoubleFault, VecInvalidTSS, VecSegmentNotPresent, VecStackFault,
		VecGeneralProtection, VecPageFault, VecAlignmentCheck,
		VecControlProtection, VecVMMCommunication, VecSecurityException:
		return true
	}
	return false
}

var exceptionNames = [NumExceptions]string{
	"#DE Divide Error",
	"#DB Debug",
	"NMI Interrupt",
	"#BP Breakpoint",
	"#OF Overflow",
	"#BR BOUND Range Exceeded",
	"#UD Invalid Opcode",
	"#NM Device Not Available",
	"#DF Double Fault",
	"Coprocessor Segment Overrun",
	"#TS Invalid TSS",
	"#NP Segment Not Present",
	"#SS Stack-Segment Fault",
	"#GP General Protection",
	"#PF Page Fault",
	"Reserved",
	"#MF x87 Floating-Point Error",
	"#AC Alignment Check",
	"#MC Machine Check",
	"#XM SIMD Floating-Point Exception",
	"#VE Virtualization Exception",
	"#CP Control Protection Exception",
	"Reserved", "Reserved", "Reserved", "Reserved", "Reserved", "Reserved",
	"#HV Hypervisor Injection Exception",
	"#VC VMM Communication Exception",
	"#SX Security Exception",
	"Reserved",
}

// ExceptionName returns the mnemonic and name of exception vector.
func ExceptionName(vector int) string {
	if Classify(vector) != ClassException {
		return fmt.Sprintf("vector 0x%02X", vector)
	}
	return exceptionNames[vector-ExceptionBase]
}
