package x86_test

import (
	"errors"
	"testing"

	"example.com/ohwes/kernel/x86"
)

func TestSegmentDescriptorFlatCode(t *testing.T) {
	d := x86.NewSegmentDescriptor(0, x86.MaxLimit, x86.TypeExecRead, x86.KernelPL)
	want := [8]byte{0xFF, 0xFF, 0x00, 0x00, 0x00, 0x9A, 0xCF, 0x00}
	if got := d.Bytes(); got != want {
		t.Fatalf("kernel code descriptor = % x, want % x", got, want)
	}
	if !d.IsCode() || d.IsSystem() || !d.Present() {
		t.Errorf("descriptor flags wrong: code=%v system=%v present=%v", d.IsCode(), d.IsSystem(), d.Present())
	}
	if d.EffectiveLimit() != 0xFFFFFFFF {
		t.Errorf("EffectiveLimit = 0x%x, want 0xffffffff", d.EffectiveLimit())
	}
}

func TestSegmentDescriptorUserData(t *testing.T) {
	d := x86.NewSegmentDescriptor(0, x86.MaxLimit, x86.TypeReadWrite, x86.UserPL)
	if got := d.Bytes()[5]; got != 0xF2 {
		t.Errorf("user data access byte = 0x%02x, want 0xf2", got)
	}
	if d.DPL() != x86.UserPL {
		t.Errorf("DPL = %d, want 3", d.DPL())
	}
}

func TestSystemDescriptorRoundTrip(t *testing.T) {
	d := x86.NewSystemDescriptor(0x1060, x86.TaskStateSize-1, x86.TypeTSS)
	b := d.Bytes()
	if b[5] != 0x89 {
		t.Errorf("TSS access byte = 0x%02x, want 0x89", b[5])
	}
	got := x86.DecodeSegmentDescriptor(b[:])
	if got.Base() != 0x1060 || got.Limit() != 103 || got.Granular() {
		t.Errorf("decoded TSS descriptor base=0x%x limit=%d granular=%v", got.Base(), got.Limit(), got.Granular())
	}
	if !got.IsSystem() || got.Type() != x86.TypeTSS {
		t.Errorf("decoded descriptor is not a TSS: %+v", got)
	}
}

func TestSelector(t *testing.T) {
	s := x86.Selector(0x2B)
	if s.Index() != 5 || s.RPL() != x86.UserPL || s.Local() {
		t.Errorf("0x2B: index=%d rpl=%d local=%v", s.Index(), s.RPL(), s.Local())
	}
	if s.Offset() != 0x28 {
		t.Errorf("0x2B offset = 0x%x, want 0x28", s.Offset())
	}
}

func TestGateDescriptor(t *testing.T) {
	g := x86.NewTrapGate(0x10, x86.UserPL, 0xC0DE1234)
	want := [8]byte{0x34, 0x12, 0x10, 0x00, 0x00, 0xEF, 0xDE, 0xC0}
	if got := g.Bytes(); got != want {
		t.Fatalf("syscall gate = % x, want % x", got, want)
	}
	b := g.Bytes()
	back := x86.DecodeGateDescriptor(b[:])
	if back.Offset() != 0xC0DE1234 || back.Kind() != x86.TrapGate || back.DPL() != x86.UserPL {
		t.Errorf("decoded gate = %+v", back)
	}

	irq := x86.NewInterruptGate(0x10, x86.KernelPL, 0x100)
	if irq.Bytes()[5] != 0x8E {
		t.Errorf("interrupt gate type byte = 0x%02x, want 0x8e", irq.Bytes()[5])
	}
	if irq.Kind().String() != "interrupt" {
		t.Errorf("Kind().String() = %q", irq.Kind().String())
	}
}

func TestTaskStateEncode(t *testing.T) {
	b := make([]byte, x86.TaskStateSize)
	for i := range b {
		b[i] = 0xCC
	}
	ts := x86.TaskState{ESP0: 0x90000, SS0: 0x18, LDT: 0x38, IOMapBase: x86.TaskStateSize}
	if err := ts.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if b[0x04] != 0x00 || b[0x05] != 0x00 || b[0x06] != 0x09 || b[0x08] != 0x18 || b[0x60] != 0x38 || b[0x66] != 104 {
		t.Errorf("unexpected TSS bytes: % x", b)
	}
	if b[0x10] != 0 || b[0x20] != 0 {
		t.Errorf("unused fields not zeroed")
	}
	if got := x86.DecodeTaskState(b); got != ts {
		t.Errorf("DecodeTaskState = %+v, want %+v", got, ts)
	}
	if err := ts.Encode(make([]byte, 10)); err == nil {
		t.Errorf("Encode into short buffer succeeded")
	}
}

func TestDescriptorRegister(t *testing.T) {
	r := x86.NewDescriptorRegister(0x800, 2048)
	if r.Limit != 2047 || r.Entries() != 256 {
		t.Errorf("IDTR limit=%d entries=%d", r.Limit, r.Entries())
	}
	want := [6]byte{0xFF, 0x07, 0x00, 0x08, 0x00, 0x00}
	if got := r.Bytes(); got != want {
		t.Errorf("IDTR bytes = % x, want % x", got, want)
	}
	if !r.Covers(255*8) || r.Covers(256*8) {
		t.Errorf("Covers boundary wrong")
	}
	b := r.Bytes()
	if x86.DecodeDescriptorRegister(b[:]) != r {
		t.Errorf("round trip mismatch")
	}
}

func TestEFlagsString(t *testing.T) {
	tests := []struct {
		flags x86.EFlags
		want  string
	}{
		{0, "[ ]"},
		{x86.FlagCF | x86.FlagZF | x86.FlagIF, "[ CF ZF IF ]"},
		{x86.FlagID, "[ ID ]"},
		{x86.FlagReserved | x86.FlagIF | x86.FlagIOPL, "[ IF ]"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("EFlags(0x%x).String() = %q, want %q", uint32(tt.flags), got, tt.want)
		}
	}
	if (x86.FlagIOPL).IOPL() != 3 {
		t.Errorf("IOPL of 0x3000 = %d", x86.FlagIOPL.IOPL())
	}
}

func TestMemoryRegion(t *testing.T) {
	m := make(x86.Memory, 0x100)
	r, err := m.Region(0xF0, 0x10)
	if err != nil || len(r) != 0x10 {
		t.Fatalf("Region(0xf0, 0x10) = %d bytes, %v", len(r), err)
	}
	if _, err := m.Region(0xF8, 0x10); !errors.Is(err, x86.ErrOutOfRange) {
		t.Errorf("Region past end error = %v, want ErrOutOfRange", err)
	}
	m[0x10] = 1
	if err := m.Zero(0x10, 1); err != nil || m[0x10] != 0 {
		t.Errorf("Zero failed: %v", err)
	}
}

func TestFramePrivilegeChanged(t *testing.T) {
	if (&x86.Frame{CS: 0x10}).PrivilegeChanged() {
		t.Errorf("kernel CS reported as privilege change")
	}
	if !(&x86.Frame{CS: 0x23}).PrivilegeChanged() {
		t.Errorf("user CS not reported as privilege change")
	}
}
