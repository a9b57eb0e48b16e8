package sim

import (
	"fmt"
	"log"
	"runtime"

	"example.com/ohwes/kernel/interrupt"
	"example.com/ohwes/kernel/x86"
)

// InterruptController is the part of the PIC the CPU talks to on the INTR
// line.
type InterruptController interface {
	HasPendingInterrupts() bool
	GetInterruptVector() (vector uint8, ok bool)
}

// FrameDispatcher is what the entry stubs call once the frame is built.
type FrameDispatcher interface {
	Dispatch(*x86.Frame)
}

// Registers holds the general purpose registers and EIP.
type Registers struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP, ESP uint32
	EIP                uint32
}

// Fault is an exception raised while the CPU was delivering an interrupt or
// loading a segment register.
type Fault struct {
	Vector uint8
	Code   uint32
	Reason string
}

// Error implements error.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s (error code 0x%x): %s", interrupt.ExceptionName(int(f.Vector)), f.Code, f.Reason)
}

// Error code bits for faults that name an IDT slot or a selector.
const (
	errExternal uint32 = 0x1 // event was not a software INT
	errIDT      uint32 = 0x2 // index refers to the IDT
)

// CPU is a software model of the protected-mode state a 32-bit x86 keeps:
// descriptor table registers, segment and control registers, EFLAGS and the
// current privilege level. It implements x86.CPU and delivers interrupts by
// reading gates from memory the way the hardware does, then calling the
// dispatcher in place of the entry stub.
//
// A CPU is driven by a single goroutine, like a real processor, so it has no
// locking of its own. Halt and a triple fault end that goroutine.
type CPU struct {
	mem      x86.Memory
	pic      InterruptController
	thunks   Thunks
	dispatch FrameDispatcher

	gdtr, idtr x86.DescriptorRegister
	ldtr, tr   x86.Selector
	segs       x86.SegmentRegisters
	cr         x86.ControlRegisters
	eflags     x86.EFlags
	regs       Registers
	cpl        x86.PrivilegeLevel
	depth      int

	halted   bool
	shutdown bool

	Debug bool
}

// NewCPU returns a CPU in the state a boot loader leaves it in: protected
// mode enabled, paging off, interrupts disabled, ring 0.
func NewCPU(mem x86.Memory, pic InterruptController, thunks Thunks, d FrameDispatcher) *CPU {
	return &CPU{
		mem:      mem,
		pic:      pic,
		thunks:   thunks,
		dispatch: d,
		cr:       x86.ControlRegisters{CR0: x86.CR0ProtectionEnable | x86.CR0ExtensionType},
		eflags:   x86.FlagReserved,
	}
}

// LoadGDT loads GDTR.
func (c *CPU) LoadGDT(r x86.DescriptorRegister) {
	if c.Debug {
		log.Printf("CPU: lgdt base=0x%x limit=0x%x", r.Base, r.Limit)
	}
	c.gdtr = r
}

// LoadIDT loads IDTR.
func (c *CPU) LoadIDT(r x86.DescriptorRegister) {
	if c.Debug {
		log.Printf("CPU: lidt base=0x%x limit=0x%x", r.Base, r.Limit)
	}
	c.idtr = r
}

// LoadLDT loads LDTR. A null selector leaves the CPU without an LDT.
func (c *CPU) LoadLDT(sel x86.Selector) {
	if sel.Index() == 0 && !sel.Local() {
		c.ldtr = 0
		return
	}
	d, err := c.descriptor(sel)
	switch {
	case err != nil:
		c.fault(err)
	case !d.IsSystem() || d.Type() != x86.TypeLDT:
		c.fault(gpSelector(sel, "not an LDT descriptor"))
	case !d.Present():
		c.fault(&Fault{Vector: interrupt.VecSegmentNotPresent, Code: uint32(sel &^ 3), Reason: "LDT not present"})
	default:
		c.ldtr = sel
	}
}

// LoadTaskRegister loads TR and marks the TSS descriptor busy in the GDT.
func (c *CPU) LoadTaskRegister(sel x86.Selector) {
	d, err := c.descriptor(sel)
	switch {
	case err != nil:
		c.fault(err)
	case !d.IsSystem() || d.Type() != x86.TypeTSS:
		c.fault(gpSelector(sel, "not an available TSS"))
	case !d.Present():
		c.fault(&Fault{Vector: interrupt.VecSegmentNotPresent, Code: uint32(sel &^ 3), Reason: "TSS not present"})
	case d.EffectiveLimit() < x86.TaskStateSize-1:
		c.fault(&Fault{Vector: interrupt.VecInvalidTSS, Code: uint32(sel &^ 3), Reason: "TSS limit too small"})
	default:
		d.Access = d.Access&^0x0F | uint8(x86.TypeTSSBusy)
		b := d.Bytes()
		copy(c.mem[c.gdtr.Base+sel.Offset():], b[:])
		c.tr = sel
	}
}

// LoadSegments reloads every segment register. CS must select a code
// segment and SS a writable data segment; the other data registers may hold
// the null selector.
func (c *CPU) LoadSegments(s x86.SegmentRegisters) {
	if err := c.checkSegments(s); err != nil {
		c.fault(err)
		return
	}
	c.segs = s
	c.cpl = s.CS.RPL()
}

func (c *CPU) checkSegments(s x86.SegmentRegisters) error {
	cs, err := c.descriptor(s.CS)
	if err != nil {
		return err
	}
	if !cs.IsCode() {
		return gpSelector(s.CS, "CS is not a code segment")
	}
	if !cs.Present() {
		return &Fault{Vector: interrupt.VecSegmentNotPresent, Code: uint32(s.CS &^ 3), Reason: "CS not present"}
	}
	if cs.DPL() != s.CS.RPL() {
		return gpSelector(s.CS, "CS privilege mismatch")
	}
	for i, sel := range []x86.Selector{s.SS, s.DS, s.ES, s.FS, s.GS} {
		stack := i == 0
		if sel == x86.NullSelector && !stack {
			continue
		}
		d, err := c.descriptor(sel)
		if err != nil {
			return err
		}
		if d.IsSystem() || d.IsCode() || d.DPL() < s.CS.RPL() {
			return gpSelector(sel, "not a data segment usable at this privilege level")
		}
		if !d.Present() {
			vec := uint8(interrupt.VecSegmentNotPresent)
			if stack {
				vec = interrupt.VecStackFault
			}
			return &Fault{Vector: vec, Code: uint32(sel &^ 3), Reason: "segment not present"}
		}
	}
	return nil
}

// ControlRegisters returns CR0, CR2, CR3 and CR4.
func (c *CPU) ControlRegisters() x86.ControlRegisters { return c.cr }

// SetControlRegisters replaces CR0, CR2, CR3 and CR4.
func (c *CPU) SetControlRegisters(cr x86.ControlRegisters) { c.cr = cr }

// DisableInterrupts clears IF and reports whether it was set.
func (c *CPU) DisableInterrupts() bool {
	was := c.eflags.Has(x86.FlagIF)
	c.eflags &^= x86.FlagIF
	return was
}

// RestoreInterrupts puts IF back. Requests that arrived while it was clear
// are taken at once.
func (c *CPU) RestoreInterrupts(enabled bool) {
	if !enabled {
		c.eflags &^= x86.FlagIF
		return
	}
	c.EnableInterrupts()
}

// EnableInterrupts sets IF and takes any pending request.
func (c *CPU) EnableInterrupts() {
	c.eflags |= x86.FlagIF
	c.PollInterrupts()
}

// Halt stops the CPU for good. It does not return: the calling goroutine
// exits once its deferred calls have run.
func (c *CPU) Halt() {
	if c.Debug {
		log.Printf("CPU: halted at EIP=0x%08x", c.regs.EIP)
	}
	c.halted = true
	runtime.Goexit()
}

// powerOff stops the CPU without unwinding the caller and drops its memory.
func (c *CPU) powerOff() {
	c.halted = true
	c.mem = nil
}

// Halted reports whether Halt was called or the machine was closed.
func (c *CPU) Halted() bool { return c.halted }

// Shutdown reports whether the CPU triple faulted.
func (c *CPU) Shutdown() bool { return c.shutdown }

// PollInterrupts takes pending controller requests while IF is set. Every
// port access the kernel makes is followed by a poll, which is where a real
// CPU samples INTR.
func (c *CPU) PollInterrupts() {
	if c.pic == nil || c.halted || c.shutdown {
		return
	}
	for c.eflags.Has(x86.FlagIF) && c.pic.HasPendingInterrupts() {
		vector, ok := c.pic.GetInterruptVector()
		if !ok {
			return
		}
		c.raise(vector, 0, false)
	}
}

// Exception raises a processor exception. code is dropped for vectors that
// push no error code.
func (c *CPU) Exception(vector uint8, code uint32) {
	if !interrupt.HasErrorCode(int(vector)) {
		code = 0
	}
	c.raise(vector, code, false)
}

// PageFault records the faulting linear address in CR2 and raises #PF.
func (c *CPU) PageFault(addr, code uint32) {
	c.cr.CR2 = addr
	c.raise(interrupt.VecPageFault, code, false)
}

// SoftwareInterrupt executes INT vector at the current privilege level.
func (c *CPU) SoftwareInterrupt(vector uint8) {
	c.raise(vector, 0, true)
}

// SetUserMode switches to ring 3 the way an IRET to user code would. cs and
// ds must select DPL 3 descriptors.
func (c *CPU) SetUserMode(cs, ds x86.Selector, esp uint32) error {
	s := x86.SegmentRegisters{CS: cs, DS: ds, SS: ds, ES: ds, FS: ds, GS: ds}
	if err := c.checkSegments(s); err != nil {
		return err
	}
	if s.CS.RPL() != x86.UserPL {
		return fmt.Errorf("sim: selector 0x%x does not request ring 3", cs)
	}
	c.segs = s
	c.cpl = x86.UserPL
	c.regs.ESP = esp
	return nil
}

// SetRegisters replaces the general purpose registers and EIP.
func (c *CPU) SetRegisters(r Registers) { c.regs = r }

// Registers returns the general purpose registers and EIP.
func (c *CPU) Registers() Registers { return c.regs }

// Segments returns the loaded segment selectors.
func (c *CPU) Segments() x86.SegmentRegisters { return c.segs }

// EFlags returns the flags register.
func (c *CPU) EFlags() x86.EFlags { return c.eflags }

// CPL returns the current privilege level.
func (c *CPU) CPL() x86.PrivilegeLevel { return c.cpl }

// GDTR returns the value last loaded by LoadGDT.
func (c *CPU) GDTR() x86.DescriptorRegister { return c.gdtr }

// IDTR returns the value last loaded by LoadIDT.
func (c *CPU) IDTR() x86.DescriptorRegister { return c.idtr }

// LDTR returns the LDT selector.
func (c *CPU) LDTR() x86.Selector { return c.ldtr }

// TR returns the task register selector.
func (c *CPU) TR() x86.Selector { return c.tr }

// Depth returns how many interrupt handlers are running, nested.
func (c *CPU) Depth() int { return c.depth }

// descriptor reads the GDT entry sel refers to.
func (c *CPU) descriptor(sel x86.Selector) (x86.SegmentDescriptor, error) {
	if sel.Local() {
		return x86.SegmentDescriptor{}, gpSelector(sel, "LDT selectors are not supported")
	}
	if sel.Index() == 0 {
		return x86.SegmentDescriptor{}, gpSelector(sel, "null selector")
	}
	if !c.gdtr.Covers(sel.Offset()) {
		return x86.SegmentDescriptor{}, gpSelector(sel, "beyond GDT limit")
	}
	raw, err := c.mem.Region(c.gdtr.Base+sel.Offset(), x86.DescriptorSize)
	if err != nil {
		return x86.SegmentDescriptor{}, gpSelector(sel, err.Error())
	}
	return x86.DecodeSegmentDescriptor(raw), nil
}

func gpSelector(sel x86.Selector, reason string) *Fault {
	return &Fault{Vector: interrupt.VecGeneralProtection, Code: uint32(sel &^ 3), Reason: reason}
}

// fault raises the exception an instruction produced.
func (c *CPU) fault(err error) {
	f, ok := err.(*Fault)
	if !ok {
		f = &Fault{Vector: interrupt.VecGeneralProtection, Reason: err.Error()}
	}
	if c.Debug {
		log.Printf("CPU: %v", f)
	}
	c.raise(f.Vector, f.Code, false)
}

// raise delivers vector and handles a failed delivery: an exception that
// cannot be delivered becomes a double fault, a double fault that cannot be
// delivered shuts the CPU down, and an IRQ or INT that cannot be delivered
// raises the fault its delivery produced.
func (c *CPU) raise(vector uint8, code uint32, soft bool) {
	if c.halted || c.shutdown {
		return
	}
	f := c.deliver(vector, code, soft)
	if f == nil {
		return
	}
	if c.Debug {
		log.Printf("CPU: delivering vector 0x%02x: %v", vector, f)
	}
	switch {
	case vector == interrupt.VecDoubleFault && !soft:
		c.tripleFault()
	case int(vector) < interrupt.NumExceptions && !soft:
		c.raise(interrupt.VecDoubleFault, 0, false)
	default:
		c.raise(f.Vector, f.Code, false)
	}
}

func (c *CPU) tripleFault() {
	log.Printf("CPU: triple fault, shutting down")
	c.shutdown = true
	runtime.Goexit()
}

// deliver enters the handler for vector through its IDT gate, runs it and
// returns as IRET would. It returns the fault the entry produced, if any.
func (c *CPU) deliver(vector uint8, code uint32, soft bool) *Fault {
	ext := errExternal
	if soft {
		ext = 0
	}
	idtCode := uint32(vector)<<3 | errIDT | ext

	off := uint32(vector) * x86.DescriptorSize
	if !c.idtr.Covers(off) {
		return &Fault{Vector: interrupt.VecGeneralProtection, Code: idtCode, Reason: "vector beyond IDT limit"}
	}
	raw, err := c.mem.Region(c.idtr.Base+off, x86.DescriptorSize)
	if err != nil {
		return &Fault{Vector: interrupt.VecGeneralProtection, Code: idtCode, Reason: err.Error()}
	}
	g := x86.DecodeGateDescriptor(raw)
	if k := g.Kind(); k != x86.InterruptGate && k != x86.TrapGate {
		return &Fault{Vector: interrupt.VecGeneralProtection, Code: idtCode, Reason: "not an interrupt or trap gate"}
	}
	if soft && g.DPL() < c.cpl {
		return &Fault{Vector: interrupt.VecGeneralProtection, Code: idtCode, Reason: "gate privilege below CPL"}
	}
	if !g.Present() {
		return &Fault{Vector: interrupt.VecSegmentNotPresent, Code: idtCode, Reason: "gate not present"}
	}

	cs, err := c.descriptor(g.Selector)
	if err != nil {
		f := err.(*Fault)
		f.Code |= ext
		return f
	}
	if !cs.IsCode() || cs.DPL() > c.cpl {
		return &Fault{Vector: interrupt.VecGeneralProtection, Code: uint32(g.Selector&^3) | ext, Reason: "gate selector is not a usable code segment"}
	}
	if !cs.Present() {
		return &Fault{Vector: interrupt.VecSegmentNotPresent, Code: uint32(g.Selector&^3) | ext, Reason: "handler code segment not present"}
	}

	stubVector, ok := c.thunks.Resolve(g.Offset())
	if !ok {
		return &Fault{Vector: interrupt.VecGeneralProtection, Code: ext, Reason: fmt.Sprintf("no entry stub at 0x%08x", g.Offset())}
	}

	frame := &x86.Frame{
		EAX: c.regs.EAX, EBX: c.regs.EBX, ECX: c.regs.ECX, EDX: c.regs.EDX,
		ESI: c.regs.ESI, EDI: c.regs.EDI, EBP: c.regs.EBP,
		Vector:    uint32(stubVector),
		ErrorCode: code,
		EIP:       c.regs.EIP,
		CS:        uint32(c.segs.CS),
		EFlags:    c.eflags,
	}

	newSS, newESP := c.segs.SS, c.regs.ESP
	pushed := uint32(3 * 4)
	if cs.DPL() < c.cpl {
		ts, f := c.taskState()
		if f != nil {
			f.Code |= ext
			return f
		}
		frame.UserESP = c.regs.ESP
		frame.UserSS = uint32(c.segs.SS)
		newSS, newESP = ts.SS0, ts.ESP0
		pushed += 2 * 4
	}
	// The stub pushes the error code slot and the vector before PUSHAD.
	frame.ESP = newESP - pushed - 2*4

	savedRegs, savedSegs, savedFlags, savedCPL := c.regs, c.segs, c.eflags, c.cpl

	c.segs.CS = g.Selector&^3 | x86.Selector(cs.DPL())
	c.segs.SS = newSS
	c.regs.ESP = frame.ESP
	c.regs.EIP = g.Offset()
	c.cpl = cs.DPL()
	c.eflags &^= x86.FlagTF | x86.FlagNT | x86.FlagRF
	if g.Kind() == x86.InterruptGate {
		c.eflags &^= x86.FlagIF
	}

	if c.Debug {
		log.Printf("CPU: vector 0x%02x via %v gate to 0x%08x (code 0x%x)", vector, g.Kind(), g.Offset(), code)
	}
	c.depth++
	c.dispatch.Dispatch(frame)
	c.depth--

	c.regs, c.segs, c.eflags, c.cpl = savedRegs, savedSegs, savedFlags, savedCPL
	return nil
}

// taskState reads the ring 0 stack from the TSS TR selects.
func (c *CPU) taskState() (x86.TaskState, *Fault) {
	if c.tr == 0 {
		return x86.TaskState{}, &Fault{Vector: interrupt.VecInvalidTSS, Reason: "task register not loaded"}
	}
	d, err := c.descriptor(c.tr)
	if err != nil {
		return x86.TaskState{}, &Fault{Vector: interrupt.VecInvalidTSS, Code: uint32(c.tr &^ 3), Reason: err.Error()}
	}
	raw, err := c.mem.Region(d.Base(), x86.TaskStateSize)
	if err != nil {
		return x86.TaskState{}, &Fault{Vector: interrupt.VecInvalidTSS, Code: uint32(c.tr &^ 3), Reason: err.Error()}
	}
	ts := x86.DecodeTaskState(raw)
	if ts.SS0.Index() == 0 {
		return x86.TaskState{}, &Fault{Vector: interrupt.VecInvalidTSS, Code: uint32(ts.SS0 &^ 3), Reason: "null SS0"}
	}
	return ts, nil
}
