package interrupt_test

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"

	"example.com/ohwes/kernel/interrupt"
	"example.com/ohwes/kernel/x86"
)

func init() {
	color.NoColor = true
}

// MockCPU records privileged operations. Halt ends the calling goroutine.
type MockCPU struct {
	mu     sync.Mutex
	idtr   x86.DescriptorRegister
	cr     x86.ControlRegisters
	halted bool
}

func (m *MockCPU) LoadGDT(x86.DescriptorRegister) {}
func (m *MockCPU) LoadIDT(r x86.DescriptorRegister) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idtr = r
}
func (m *MockCPU) LoadLDT(x86.Selector)                   {}
func (m *MockCPU) LoadTaskRegister(x86.Selector)          {}
func (m *MockCPU) LoadSegments(x86.SegmentRegisters)      {}
func (m *MockCPU) ControlRegisters() x86.ControlRegisters { return m.cr }
func (m *MockCPU) DisableInterrupts() bool                { return false }
func (m *MockCPU) RestoreInterrupts(bool)                 {}
func (m *MockCPU) EnableInterrupts()                      {}
func (m *MockCPU) Halt() {
	m.mu.Lock()
	m.halted = true
	m.mu.Unlock()
	runtime.Goexit()
}

func (m *MockCPU) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// fakeThunks places stub n at 0xC0000000 + 0x100*n for exceptions, offset
// 0x10000 for IRQs and 0xC00F0000 for the system call.
type fakeThunks struct{}

func (fakeThunks) Exception(n uint8) uint32 { return 0xC0000000 + 0x100*uint32(n) }
func (fakeThunks) IRQ(n uint8) uint32       { return 0xC0010000 + 0x100*uint32(n) }
func (fakeThunks) Syscall() uint32          { return 0xC00F0000 }

func TestRangesDoNotOverlap(t *testing.T) {
	counts := map[interrupt.Class]int{}
	for v := 0; v < interrupt.NumVectors; v++ {
		counts[interrupt.Classify(v)]++
	}
	if counts[interrupt.ClassException] != 32 || counts[interrupt.ClassIRQ] != 16 || counts[interrupt.ClassSyscall] != 1 {
		t.Errorf("class counts = %v", counts)
	}
	if counts[interrupt.ClassUnhandled] != 256-49 {
		t.Errorf("unhandled count = %d", counts[interrupt.ClassUnhandled])
	}
}

func TestIRQLine(t *testing.T) {
	for v := 0; v < interrupt.NumVectors; v++ {
		line, ok := interrupt.IRQLine(v)
		if want := v >= 0x20 && v < 0x30; ok != want {
			t.Fatalf("IRQLine(0x%x) ok = %v", v, ok)
		}
		if ok && line != v-0x20 {
			t.Errorf("IRQLine(0x%x) = %d", v, line)
		}
	}
}

func TestInitIDT(t *testing.T) {
	mem := make(x86.Memory, 0x2000)
	for i := range mem {
		mem[i] = 0xCC
	}
	cpu := &MockCPU{}
	tbl := interrupt.Table{Base: 0x800, RegPtr: 0x10D8, CS: 0x10}
	if err := interrupt.InitIDT(mem, tbl, fakeThunks{}, cpu); err != nil {
		t.Fatalf("InitIDT: %v", err)
	}

	if cpu.idtr.Base != 0x800 || cpu.idtr.Limit != 2047 {
		t.Errorf("loaded IDTR = %+v", cpu.idtr)
	}
	if got := x86.DecodeDescriptorRegister(mem[0x10D8:]); got != cpu.idtr {
		t.Errorf("pseudo-descriptor in memory = %+v", got)
	}

	for v := 0; v < interrupt.NumVectors; v++ {
		g, err := interrupt.ReadGate(mem, 0x800, v)
		if err != nil {
			t.Fatal(err)
		}
		switch interrupt.Classify(v) {
		case interrupt.ClassException:
			checkGate(t, v, g, x86.TrapGate, x86.KernelPL, fakeThunks{}.Exception(uint8(v)))
		case interrupt.ClassIRQ:
			checkGate(t, v, g, x86.InterruptGate, x86.KernelPL, fakeThunks{}.IRQ(uint8(v-0x20)))
		case interrupt.ClassSyscall:
			checkGate(t, v, g, x86.TrapGate, x86.UserPL, fakeThunks{}.Syscall())
		default:
			if !g.IsZero() {
				t.Errorf("vector 0x%02x: unhandled slot not zero: %+v", v, g)
			}
		}
	}
}

func checkGate(t *testing.T, v int, g x86.GateDescriptor, kind x86.GateKind, dpl x86.PrivilegeLevel, entry uint32) {
	t.Helper()
	if !g.Present() || g.Kind() != kind || g.DPL() != dpl || g.Selector != 0x10 || g.Offset() != entry || g.Reserved != 0 {
		t.Errorf("vector 0x%02x: gate %+v, want %v gate DPL %d entry 0x%x", v, g, kind, dpl, entry)
	}
}

func TestInitIDTOutOfMemory(t *testing.T) {
	mem := make(x86.Memory, 0x900)
	err := interrupt.InitIDT(mem, interrupt.Table{Base: 0x800, RegPtr: 0x10}, fakeThunks{}, &MockCPU{})
	if err == nil {
		t.Errorf("InitIDT succeeded with a table past the end of memory")
	}
}

func TestDispatcher(t *testing.T) {
	d := interrupt.NewDispatcher()
	var got []string
	d.Register(0x21, func(f *x86.Frame) { got = append(got, fmt.Sprintf("irq %x", f.Vector)) })
	d.Dispatch(&x86.Frame{Vector: 0x21})
	d.Dispatch(&x86.Frame{Vector: 0x40})
	d.Fallback = func(f *x86.Frame) { got = append(got, fmt.Sprintf("fallback %x", f.Vector)) }
	d.Dispatch(&x86.Frame{Vector: 0x40})
	d.Register(0x21, nil)
	d.Dispatch(&x86.Frame{Vector: 0x21})

	want := "[irq 21 fallback 40 fallback 21]"
	if fmt.Sprint(got) != want {
		t.Errorf("dispatch log = %v, want %s", got, want)
	}
}

func TestExceptionHandlerDumpsAndHalts(t *testing.T) {
	for v := 0; v < interrupt.NumExceptions; v++ {
		var out bytes.Buffer
		cpu := &MockCPU{cr: x86.ControlRegisters{CR0: 0x11, CR2: 0xDEAD0000 + uint32(v), CR3: 0x3000, CR4: 0x4}}
		f := &x86.Frame{
			EAX: 0xA, EBX: 0xB, ECX: 0xC, EDX: 0xD,
			ESI: 0x51, EDI: 0xD1, EBP: 0xB9, ESP: 0x8FFF0,
			Vector: uint32(v), ErrorCode: 0x100 + uint32(v),
			EIP: 0x1234, CS: 0x10, EFlags: x86.FlagReserved | x86.FlagIF | x86.FlagZF,
		}

		returned := false
		done := make(chan struct{})
		go func() {
			defer close(done)
			interrupt.ExceptionHandler(&out, cpu)(f)
			returned = true
		}()
		<-done

		if returned || !cpu.Halted() {
			t.Fatalf("vector %d: handler returned=%v halted=%v", v, returned, cpu.Halted())
		}
		dump := out.String()
		for _, want := range []string{
			fmt.Sprintf("Exception 0x%02X!", v),
			fmt.Sprintf("Error Code: %08X", 0x100+v),
			"EAX=0000000A EBX=0000000B ECX=0000000C EDX=0000000D",
			"ESI=00000051 EDI=000000D1 EBP=000000B9 ESP=0008FFF0",
			"EIP=00001234",
			fmt.Sprintf("CR0=00000011 CR2=%08X CR3=00003000 CR4=00000004", 0xDEAD0000+v),
			"CS=10 IOPL=0 EFLAGS=00000242 [ ZF IF ]",
			interrupt.PanicMessage,
		} {
			if !strings.Contains(dump, want) {
				t.Errorf("vector %d: dump lacks %q:\n%s", v, want, dump)
			}
		}
	}
}

func TestWriteDiagnosticDecodesIDFlag(t *testing.T) {
	var out bytes.Buffer
	interrupt.WriteDiagnostic(&out, &x86.Frame{Vector: 6, CS: 0x10, EFlags: x86.FlagID}, x86.ControlRegisters{})
	if !strings.Contains(out.String(), "EFLAGS=00200000 [ ID ]") {
		t.Errorf("dump = %s", out.String())
	}
}

func TestWriteDiagnosticUserFrame(t *testing.T) {
	var out bytes.Buffer
	f := &x86.Frame{Vector: 13, CS: 0x23, UserSS: 0x2B, UserESP: 0x7000}
	interrupt.WriteDiagnostic(&out, f, x86.ControlRegisters{})
	if !strings.Contains(out.String(), "SS=2B USER ESP=00007000") {
		t.Errorf("dump = %s", out.String())
	}
}

type mockEOI struct {
	mu    sync.Mutex
	lines []uint8
}

func (m *mockEOI) EndOfInterrupt(line uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

func TestIRQHandler(t *testing.T) {
	var out bytes.Buffer
	eoi := &mockEOI{}
	h := interrupt.IRQHandler(&out, eoi)
	h(&x86.Frame{Vector: 0x21})
	h(&x86.Frame{Vector: 0x2F})
	if out.String() != "Device IRQ 1!\nDevice IRQ 15!\n" {
		t.Errorf("output = %q", out.String())
	}
	if fmt.Sprint(eoi.lines) != "[1 15]" {
		t.Errorf("EOI lines = %v", eoi.lines)
	}
}

func TestInstallDefaultHandlers(t *testing.T) {
	var out bytes.Buffer
	d := interrupt.NewDispatcher()
	interrupt.InstallDefaultHandlers(d, &out, &MockCPU{}, nil)
	for v := 0; v < interrupt.NumVectors; v++ {
		registered := d.Handler(uint8(v)) != nil
		if want := interrupt.Classify(v) != interrupt.ClassUnhandled; registered != want {
			t.Errorf("vector 0x%02x registered = %v", v, registered)
		}
	}
	d.Dispatch(&x86.Frame{Vector: 0x80, EAX: 7})
	d.Dispatch(&x86.Frame{Vector: 0x90})
	if out.String() != "System call 7 not implemented!\nUnhandled interrupt 0x90!\n" {
		t.Errorf("output = %q", out.String())
	}
}
