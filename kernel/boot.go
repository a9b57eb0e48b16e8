// Package kernel brings up the protected-mode hardware state of OHWES: the
// descriptor tables, the task state, the interrupt controller and the
// console and keyboard devices, in an order that never lets an interrupt
// vector into an unbuilt table.
package kernel

import (
	"errors"
	"fmt"
	"log"

	"example.com/ohwes/kernel/drivers/pic"
	"example.com/ohwes/kernel/drivers/ps2"
	"example.com/ohwes/kernel/drivers/serial"
	"example.com/ohwes/kernel/drivers/vga"
	"example.com/ohwes/kernel/interrupt"
	"example.com/ohwes/kernel/portio"
	"example.com/ohwes/kernel/x86"
)

// IRQ vector bases the interrupt controllers are moved to.
const (
	MasterVectorBase uint8 = interrupt.IRQBase
	SlaveVectorBase  uint8 = interrupt.IRQBase + pic.LinesPerChip
)

// KeyboardIRQ is the interrupt line of the 8042 first port.
const KeyboardIRQ uint8 = 1

const cascadeIRQ uint8 = 2

// Hardware is what the kernel runs on. On the target these are the physical
// memory, the processor and the I/O space; tests and the simulator supply
// software versions.
type Hardware struct {
	Memory x86.Memory
	CPU    x86.CPU
	Ports  portio.Ports

	// Thunks gives the entry stub address of each vector and Dispatcher is
	// what those stubs call.
	Thunks     interrupt.Thunks
	Dispatcher *interrupt.Dispatcher
}

// Config holds the boot parameters.
type Config struct {
	Layout Layout

	SerialPort    uint16 // console UART base; 0 means COM1
	SerialDivisor uint16 // 115200 / baud; 0 means 1

	Debug bool
}

// DefaultConfig returns the standard layout with the console on COM1 at
// 115200 baud.
func DefaultConfig() Config {
	return Config{Layout: DefaultLayout(), SerialPort: serial.COM1, SerialDivisor: 1}
}

// Kernel is the booted system.
type Kernel struct {
	Layout     Layout
	Console    *serial.Console
	PIC        *pic.Controller
	Display    *vga.Display
	Keyboard   *ps2.Keyboard
	Dispatcher *interrupt.Dispatcher

	// KeyboardErr is set when the keyboard did not initialize. The kernel
	// boots without it.
	KeyboardErr error
}

// Boot initializes the hardware in this order: GDT, LDT, IDT, TSS, interrupt
// controller, console, handlers, display, keyboard. It prints the banner and
// enables interrupts last. Interrupts stay disabled until then, so nothing
// can vector through a table that is not yet complete.
func Boot(hw Hardware, cfg Config) (*Kernel, error) {
	if hw.CPU == nil || hw.Ports == nil || hw.Thunks == nil || hw.Dispatcher == nil {
		return nil, errors.New("kernel: incomplete hardware description")
	}
	l := cfg.Layout
	if err := l.Validate(uint32(len(hw.Memory))); err != nil {
		return nil, err
	}
	if cfg.SerialPort == 0 {
		cfg.SerialPort = serial.COM1
	}
	if cfg.SerialDivisor == 0 {
		cfg.SerialDivisor = 1
	}

	hw.CPU.DisableInterrupts()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"gdt", func() error { return InitGDT(hw.Memory, l, hw.CPU) }},
		{"ldt", func() error { return InitLDT(hw.Memory, l, hw.CPU) }},
		{"idt", func() error {
			return interrupt.InitIDT(hw.Memory, interrupt.Table{Base: l.IDT.Base, RegPtr: l.IDTR, CS: KernelCS}, hw.Thunks, hw.CPU)
		}},
		{"tss", func() error { return InitTSS(hw.Memory, l, hw.CPU) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return nil, fmt.Errorf("kernel: %s init: %w", s.name, err)
		}
		if cfg.Debug {
			log.Printf("kernel: %s initialized", s.name)
		}
	}

	k := &Kernel{
		Layout:     l,
		Console:    serial.New(hw.Ports, cfg.SerialPort),
		PIC:        pic.New(hw.Ports, hw.CPU),
		Display:    vga.New(hw.Ports, hw.CPU),
		Keyboard:   ps2.NewKeyboard(ps2.NewController(hw.Ports, hw.CPU)),
		Dispatcher: hw.Dispatcher,
	}

	k.PIC.Remap(MasterVectorBase, SlaveVectorBase)
	k.PIC.SetMask(^uint16(1 << cascadeIRQ))
	if cfg.Debug {
		log.Printf("kernel: interrupt controllers at 0x%02x/0x%02x", MasterVectorBase, SlaveVectorBase)
	}

	k.Console.Init(cfg.SerialDivisor)
	interrupt.InstallDefaultHandlers(hw.Dispatcher, k.Console, hw.CPU, k.PIC)

	k.Display.Init()

	if err := k.Keyboard.Init(); err != nil {
		k.KeyboardErr = err
		fmt.Fprintf(k.Console, "keyboard: %v\n", err)
	} else {
		k.PIC.Unmask(KeyboardIRQ)
	}

	fmt.Fprintf(k.Console, "\n%s\n", Banner())
	if cfg.Debug {
		log.Printf("kernel: boot complete, enabling interrupts")
	}
	hw.CPU.EnableInterrupts()
	return k, nil
}
