// Package sim is a software PC for the kernel to boot on: guest memory, a
// CPU model that takes interrupts through the IDT, and the port bus with the
// interrupt controller, interval timer, keyboard controller, UART and VGA
// registers on it.
package sim

import (
	"errors"
	"io"
	"log"

	"example.com/ohwes/kernel"
	"example.com/ohwes/kernel/devices"
	"example.com/ohwes/kernel/interrupt"
	"example.com/ohwes/kernel/portio"
	"example.com/ohwes/kernel/x86"
)

// DefaultMemorySize covers the descriptor tables and the kernel stack.
const DefaultMemorySize uint32 = 1 << 20

// ErrClosed is returned by Boot on a machine that has been closed.
var ErrClosed = errors.New("sim: machine closed")

// Machine is a simulated PC.
type Machine struct {
	Memory     x86.Memory
	CPU        *CPU
	Bus        *portio.IOBus
	PIC        *devices.PICDevice
	Keyboard   *devices.KeyboardDevice
	UART       *devices.SerialPortDevice
	VGA        *devices.VGADevice
	Timer      *devices.PITDevice
	Dispatcher *interrupt.Dispatcher
	Thunks     Thunks

	MemorySize uint32
	Debug      bool
}

// NewMachine creates a machine with memSize bytes of memory. Bytes the UART
// transmits are written to console.
func NewMachine(memSize uint32, console io.Writer, enableDebug bool) (*Machine, error) {
	if memSize == 0 {
		memSize = DefaultMemorySize
	}
	if console == nil {
		console = io.Discard
	}

	mem, err := allocMemory(memSize)
	if err != nil {
		return nil, err
	}

	bus := portio.NewIOBus()
	pic := devices.NewPICDevice()
	uart := devices.NewSerialPortDevice(devices.COM1PortBase, console, pic)
	keyboard := devices.NewKeyboardDevice(pic)
	vga := devices.NewVGADevice()
	timer := devices.NewPITDevice(pic)

	bus.RegisterDevice(devices.PICMasterCmdPort, devices.PICMasterDataPort, pic)
	bus.RegisterDevice(devices.PICSlaveCmdPort, devices.PICSlaveDataPort, pic)
	bus.RegisterDevice(devices.COM1PortBase, devices.COM1PortEnd, uart)
	bus.RegisterDevice(devices.I8042DataPort, devices.I8042DataPort, keyboard)
	bus.RegisterDevice(devices.I8042StatusPort, devices.I8042StatusPort, keyboard)
	bus.RegisterDevice(devices.VGAPortStart, devices.VGAPortEnd, vga)
	bus.RegisterDevice(devices.PITChannel0Port, devices.PITCommandPort, timer)

	thunks := Thunks{Base: DefaultThunkBase}
	dispatcher := interrupt.NewDispatcher()

	m := &Machine{
		Memory:     mem,
		Bus:        bus,
		PIC:        pic,
		Keyboard:   keyboard,
		UART:       uart,
		VGA:        vga,
		Timer:      timer,
		Dispatcher: dispatcher,
		Thunks:     thunks,
		MemorySize: memSize,
		Debug:      enableDebug,
	}
	m.CPU = NewCPU(mem, pic, thunks, dispatcher)

	m.CPU.Debug = enableDebug
	bus.Debug = enableDebug
	pic.Debug = enableDebug
	keyboard.Debug = enableDebug
	uart.Debug = enableDebug
	vga.Debug = enableDebug
	timer.Debug = enableDebug
	if enableDebug {
		log.Printf("Machine: %d KiB of memory, devices on the port bus", memSize>>10)
	}
	return m, nil
}

// cpuPorts gives the CPU a chance to take an interrupt after every port
// access, the way a real CPU samples INTR between instructions. The poll
// happens after the device has released its lock.
type cpuPorts struct {
	bus *portio.IOBus
	cpu *CPU
}

func (p cpuPorts) ReadPort(port uint16) uint8 {
	v := p.bus.ReadPort(port)
	p.cpu.PollInterrupts()
	return v
}

func (p cpuPorts) WritePort(port uint16, v uint8) {
	p.bus.WritePort(port, v)
	p.cpu.PollInterrupts()
}

// Hardware describes the machine to the kernel.
func (m *Machine) Hardware() kernel.Hardware {
	return kernel.Hardware{
		Memory:     m.Memory,
		CPU:        m.CPU,
		Ports:      cpuPorts{bus: m.Bus, cpu: m.CPU},
		Thunks:     m.Thunks,
		Dispatcher: m.Dispatcher,
	}
}

// Run executes fn as the machine's only thread of execution and waits for it
// to finish, halt or shut the CPU down. It reports whether the CPU stopped.
// A stopped machine runs nothing more.
// Everything that drives the CPU, including RaiseIRQ and PressKey, must be
// called from inside fn.
func (m *Machine) Run(fn func()) (stopped bool) {
	if m.CPU.Halted() || m.CPU.Shutdown() {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	<-done
	return m.CPU.Halted() || m.CPU.Shutdown()
}

// Boot boots the kernel on the machine. stopped is true if the CPU halted
// during boot.
func (m *Machine) Boot(cfg kernel.Config) (k *kernel.Kernel, stopped bool, err error) {
	if m.Memory == nil {
		return nil, true, ErrClosed
	}
	stopped = m.Run(func() {
		k, err = kernel.Boot(m.Hardware(), cfg)
	})
	if stopped && err == nil {
		err = errors.New("sim: CPU stopped during boot")
	}
	return k, stopped, err
}

// RaiseIRQ signals line on the interrupt controller and lets the CPU take
// it.
func (m *Machine) RaiseIRQ(line uint8) {
	m.PIC.RaiseIRQ(line)
	m.CPU.PollInterrupts()
}

// PressKey makes the keyboard send scancode. It reports whether the
// keyboard had scanning enabled.
func (m *Machine) PressKey(scancode byte) bool {
	ok := m.Keyboard.PressKey(scancode)
	m.CPU.PollInterrupts()
	return ok
}

// Tick lets clocks timer input cycles pass and lets the CPU take IRQ 0 if
// the timer fired. It returns the number of timer periods that elapsed.
func (m *Machine) Tick(clocks uint64) int {
	fired := m.Timer.Advance(clocks)
	m.CPU.PollInterrupts()
	return fired
}

// Close powers the CPU off and releases the guest memory. A closed machine
// runs nothing more.
func (m *Machine) Close() error {
	if m.Memory == nil {
		return nil
	}
	m.CPU.powerOff()
	err := freeMemory(m.Memory)
	m.Memory = nil
	if m.Debug {
		log.Println("Machine: closed")
	}
	return err
}
