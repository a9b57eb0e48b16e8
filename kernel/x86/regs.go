package x86

// Frame is the register snapshot the entry thunks build on the kernel stack
// before calling into a handler. Handlers only read it.
type Frame struct {
	// General purpose registers, pushed by the thunk.
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP, ESP uint32

	// Vector is the IDT slot that was taken. ErrorCode is only meaningful
	// for exceptions that push one (8, 10-14, 17, 21, 29, 30); the thunks
	// push zero for the rest.
	Vector    uint32
	ErrorCode uint32

	// Return frame pushed by the CPU.
	EIP    uint32
	CS     uint32
	EFlags EFlags

	// UserESP and UserSS are only pushed when the interrupt arrived
	// while running below ring 0.
	UserESP uint32
	UserSS  uint32
}

// PrivilegeChanged reports whether the interrupted code ran outside ring 0,
// in which case UserESP and UserSS are valid.
func (f *Frame) PrivilegeChanged() bool {
	return Selector(f.CS).RPL() != KernelPL
}

// SegmentRegisters holds the six segment selectors.
type SegmentRegisters struct {
	CS, DS, SS, ES, FS, GS Selector
}

// ControlRegisters holds the control registers included in diagnostics.
type ControlRegisters struct {
	CR0, CR2, CR3, CR4 uint32
}

// CR0 bits.
const (
	CR0ProtectionEnable uint32 = 1 << 0
	CR0ExtensionType    uint32 = 1 << 4
	CR0Paging           uint32 = 1 << 31
)
