package devices

import (
	"fmt"
	"log"
	"sync"

	"example.com/ohwes/kernel/portio"
)

// InterruptRaiser is how a device signals an IRQ line.
type InterruptRaiser interface {
	RaiseIRQ(irqLine uint8)
}

// pic8259 is one 8259A of the cascaded pair.
type pic8259 struct {
	name   string
	offset uint8 // ICW2 vector base
	imr    uint8
	irr    uint8
	isr    uint8

	icw     int // next ICW expected (2-4), 0 when initialized
	icw1    byte
	autoEOI bool
	readISR bool
}

func (pc *pic8259) writeCommand(val byte) {
	switch {
	case val&icw1Init != 0:
		pc.icw = 2
		pc.icw1 = val
		pc.imr, pc.irr, pc.isr = 0, 0, 0
		pc.autoEOI = false
		pc.readISR = false
	case val&0x18 == ocw3Tag:
		if val&ocw3RR != 0 {
			pc.readISR = val&ocw3RIS != 0
		}
	case val&ocw2EOI != 0:
		if val&ocw2Specific != 0 {
			pc.isr &^= 1 << (val & 7)
		} else {
			pc.eoi()
		}
	}
}

// eoi clears the highest priority in-service bit.
func (pc *pic8259) eoi() {
	for i := uint8(0); i < 8; i++ {
		if pc.isr&(1<<i) != 0 {
			pc.isr &^= 1 << i
			return
		}
	}
}

func (pc *pic8259) writeData(val byte) {
	switch pc.icw {
	case 0:
		pc.imr = val
	case 2:
		pc.offset = val &^ 7
		switch {
		case pc.icw1&icw1SNGL == 0:
			pc.icw = 3
		case pc.icw1&icw1IC4 != 0:
			pc.icw = 4
		default:
			pc.icw = 0
		}
	case 3:
		if pc.icw1&icw1IC4 != 0 {
			pc.icw = 4
		} else {
			pc.icw = 0
		}
	case 4:
		pc.autoEOI = val&icw4AEOI != 0
		pc.icw = 0
	}
}

func (pc *pic8259) readCommand() byte {
	if pc.readISR {
		return pc.isr
	}
	return pc.irr
}

// pending returns the lowest numbered requested, unmasked line that is not
// blocked by an equal or higher priority line in service.
func (pc *pic8259) pending() (uint8, bool) {
	req := pc.irr &^ pc.imr
	for i := uint8(0); i < 8; i++ {
		if pc.isr&(1<<i) != 0 {
			return 0, false
		}
		if req&(1<<i) != 0 {
			return i, true
		}
	}
	return 0, false
}

func (pc *pic8259) accept(line uint8) {
	pc.irr &^= 1 << line
	if !pc.autoEOI {
		pc.isr |= 1 << line
	}
}

// PICDevice is the master/slave 8259A pair of a PC.
type PICDevice struct {
	lock   sync.Mutex
	master pic8259
	slave  pic8259

	Debug bool
}

// NewPICDevice returns a pair in its power-on state: every line masked and
// the BIOS vector bases 0x08 and 0x70.
func NewPICDevice() *PICDevice {
	return &PICDevice{
		master: pic8259{name: "master", offset: 0x08, imr: 0xFF},
		slave:  pic8259{name: "slave", offset: 0x70, imr: 0xFF},
	}
}

// HandleIO implements portio.PioDevice.
func (p *PICDevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("PICDevice: I/O size %d not supported for port 0x%x", size, port)
	}

	var pc *pic8259
	switch port {
	case PICMasterCmdPort, PICMasterDataPort:
		pc = &p.master
	case PICSlaveCmdPort, PICSlaveDataPort:
		pc = &p.slave
	default:
		return fmt.Errorf("PICDevice: unhandled I/O to port 0x%x", port)
	}
	isCmd := port == PICMasterCmdPort || port == PICSlaveCmdPort

	if direction == portio.IODirectionOut {
		if isCmd {
			pc.writeCommand(data[0])
		} else {
			pc.writeData(data[0])
		}
		if p.Debug {
			log.Printf("PICDevice: %s port 0x%x <- 0x%02x (offset 0x%02x imr 0x%02x)", pc.name, port, data[0], pc.offset, pc.imr)
		}
		return nil
	}
	if isCmd {
		data[0] = pc.readCommand()
	} else {
		data[0] = pc.imr
	}
	return nil
}

// RaiseIRQ latches an edge on irqLine (0-15). Masked lines are dropped, as
// the simulated lines are edge triggered.
func (p *PICDevice) RaiseIRQ(irqLine uint8) {
	p.lock.Lock()
	defer p.lock.Unlock()

	switch {
	case irqLine < 8:
		if p.master.imr&(1<<irqLine) == 0 {
			p.master.irr |= 1 << irqLine
		}
	case irqLine < 16:
		line := irqLine - 8
		if p.slave.imr&(1<<line) == 0 {
			p.slave.irr |= 1 << line
			if p.master.imr&(1<<CascadeIRQ) == 0 {
				p.master.irr |= 1 << CascadeIRQ
			}
		}
	default:
		log.Printf("PICDevice: invalid IRQ line %d", irqLine)
	}
}

// HasPendingInterrupts reports whether GetInterruptVector would return a
// vector.
func (p *PICDevice) HasPendingInterrupts() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	_, ok := p.next(false)
	return ok
}

// GetInterruptVector acknowledges the highest priority pending line and
// returns its vector. ok is false when nothing is pending.
func (p *PICDevice) GetInterruptVector() (vector uint8, ok bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.next(true)
}

func (p *PICDevice) next(ack bool) (uint8, bool) {
	for {
		line, ok := p.master.pending()
		if !ok {
			return 0, false
		}
		if line != CascadeIRQ {
			if ack {
				p.master.accept(line)
			}
			return p.master.offset + line, true
		}
		sline, ok := p.slave.pending()
		if !ok {
			// Stale cascade request: nothing is left on the slave.
			p.master.irr &^= 1 << CascadeIRQ
			continue
		}
		if ack {
			p.master.accept(CascadeIRQ)
			p.slave.accept(sline)
			if p.slave.irr&^p.slave.imr != 0 {
				p.master.irr |= 1 << CascadeIRQ
			}
		}
		return p.slave.offset + sline, true
	}
}

// Offsets returns the programmed vector bases.
func (p *PICDevice) Offsets() (master, slave uint8) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.master.offset, p.slave.offset
}

// InService returns the combined in-service register, bit n for IRQ n.
func (p *PICDevice) InService() uint16 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return uint16(p.master.isr) | uint16(p.slave.isr)<<8
}
