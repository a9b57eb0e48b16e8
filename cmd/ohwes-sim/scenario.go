package main

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"example.com/ohwes/kernel"
	"example.com/ohwes/kernel/drivers/pit"
	"example.com/ohwes/kernel/interrupt"
	"example.com/ohwes/kernel/sim"
)

const (
	// userStack is where the syscall scenario points the ring 3 stack.
	userStack = 0x7000

	timerIRQ = 0
)

var (
	okColor   = color.New(color.FgGreen)
	stopColor = color.New(color.FgRed, color.Bold)
)

// scenario is what the CLI does to the machine after boot.
type scenario struct {
	IRQs    []uint8
	Keys    []byte
	Syscall bool
	Fault   int // exception vector, or -1 for none

	// Ticks timer periods pass at TimerHz with IRQ 0 unmasked.
	Ticks   int
	TimerHz uint32
}

// parseList splits a comma separated list of numbers in the given base.
func parseList(s string, base int) ([]uint8, error) {
	var out []uint8
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if base == 16 {
			f = strings.TrimPrefix(f, "0x")
		}
		v, err := strconv.ParseUint(f, base, 8)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", f, err)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

// runMachine builds a machine from cfg, boots it and plays sc on it. Console
// output goes to out. It reports whether the CPU ended up stopped.
func runMachine(cfg machineConfig, sc scenario, out io.Writer) (bool, error) {
	m, err := sim.NewMachine(cfg.MemorySize, out, cfg.Boot.Debug)
	if err != nil {
		return false, err
	}
	defer m.Close()

	k, _, err := m.Boot(cfg.Boot)
	if err != nil {
		return true, err
	}
	if k.KeyboardErr != nil {
		log.Printf("ohwes-sim: booted without keyboard: %v", k.KeyboardErr)
	}
	okColor.Fprintf(out, "booted %s, %d KiB\n", kernel.Banner(), cfg.MemorySize>>10)

	stopped := m.Run(func() {
		for _, line := range sc.IRQs {
			m.RaiseIRQ(line)
		}
		for _, code := range sc.Keys {
			if !m.PressKey(code) {
				log.Printf("ohwes-sim: key 0x%02x dropped, scanning is off", code)
			}
		}
		if sc.Ticks > 0 {
			timer := pit.New(m.Hardware().Ports, m.CPU)
			period := timer.SetPeriodic(sc.TimerHz)
			k.PIC.Unmask(timerIRQ)
			for i := 0; i < sc.Ticks; i++ {
				m.Tick(uint64(period))
			}
		}
		if sc.Syscall {
			m.CPU.SetRegisters(sim.Registers{EAX: 1})
			if err := m.CPU.SetUserMode(kernel.UserCS, kernel.UserDS, userStack); err != nil {
				log.Printf("ohwes-sim: %v", err)
				return
			}
			m.CPU.SoftwareInterrupt(interrupt.SyscallVector)
		}
		if sc.Fault >= 0 {
			m.CPU.Exception(uint8(sc.Fault), 0)
		}
	})
	if stopped {
		state := "halted"
		if m.CPU.Shutdown() {
			state = "shut down"
		}
		stopColor.Fprintf(out, "CPU %s\n", state)
	}
	return stopped, nil
}
