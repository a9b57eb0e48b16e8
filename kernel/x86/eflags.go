package x86

import "strings"

// EFlags is the 32-bit flags register.
type EFlags uint32

// eflags
const (
	FlagCF   EFlags = 1 << 0  // carry
	FlagPF   EFlags = 1 << 2  // parity
	FlagAF   EFlags = 1 << 4  // auxiliary carry
	FlagZF   EFlags = 1 << 6  // zero
	FlagSF   EFlags = 1 << 7  // sign
	FlagTF   EFlags = 1 << 8  // trap (single step)
	FlagIF   EFlags = 1 << 9  // interrupt enable
	FlagDF   EFlags = 1 << 10 // direction
	FlagOF   EFlags = 1 << 11 // overflow
	FlagIOPL EFlags = 3 << 12 // I/O privilege level (2 bits)
	FlagNT   EFlags = 1 << 14 // nested task
	FlagRF   EFlags = 1 << 16 // resume
	FlagVM   EFlags = 1 << 17 // virtual-8086 mode
	FlagAC   EFlags = 1 << 18 // alignment check
	FlagVIF  EFlags = 1 << 19 // virtual interrupt
	FlagVIP  EFlags = 1 << 20 // virtual interrupt pending
	FlagID   EFlags = 1 << 21 // CPUID available

	// FlagReserved is bit 1, which always reads as one.
	FlagReserved EFlags = 1 << 1
)

// flagNames lists every single-bit flag in bit order.
var flagNames = [...]struct {
	flag EFlags
	name string
}{
	{FlagCF, "CF"},
	{FlagPF, "PF"},
	{FlagAF, "AF"},
	{FlagZF, "ZF"},
	{FlagSF, "SF"},
	{FlagTF, "TF"},
	{FlagIF, "IF"},
	{FlagDF, "DF"},
	{FlagOF, "OF"},
	{FlagNT, "NT"},
	{FlagRF, "RF"},
	{FlagVM, "VM"},
	{FlagAC, "AC"},
	{FlagVIF, "VIF"},
	{FlagVIP, "VIP"},
	{FlagID, "ID"},
}

// Has reports whether every bit of flag is set.
func (f EFlags) Has(flag EFlags) bool { return f&flag == flag }

// IOPL returns the I/O privilege level field.
func (f EFlags) IOPL() PrivilegeLevel { return PrivilegeLevel(f>>12) & 3 }

// Names returns the mnemonic of every set flag in bit order.
func (f EFlags) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

// String renders the set flags as "[ CF ZF IF ]".
func (f EFlags) String() string {
	var sb strings.Builder
	sb.WriteString("[ ")
	for _, name := range f.Names() {
		sb.WriteString(name)
		sb.WriteByte(' ')
	}
	sb.WriteByte(']')
	return sb.String()
}
