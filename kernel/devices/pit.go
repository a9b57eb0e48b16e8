package devices

import (
	"fmt"
	"log"
	"sync"

	"example.com/ohwes/kernel/portio"
)

// pitChannel is one counter of the 8254.
type pitChannel struct {
	reload uint32 // 1..65536, a programmed 0 means 65536
	count  uint32
	mode   byte
	access byte
	armed  bool // a full reload value has been written

	writeHigh bool // next data write is the MSB
	readHigh  bool // next data read is the MSB

	latched bool
	latch   uint16
}

func (c *pitChannel) load(v uint16) {
	c.reload = uint32(v)
	if c.reload == 0 {
		c.reload = 0x10000
	}
	c.count = c.reload
	c.armed = true
}

func (c *pitChannel) writeData(val byte) {
	switch c.access {
	case pitAccessLSB:
		c.load(uint16(val))
	case pitAccessMSB:
		c.load(uint16(val) << 8)
	case pitAccessLOHI:
		if !c.writeHigh {
			c.reload = uint32(val)
			c.armed = false
		} else {
			c.load(uint16(c.reload) | uint16(val)<<8)
		}
		c.writeHigh = !c.writeHigh
	}
}

func (c *pitChannel) readData() byte {
	v := uint16(c.count)
	if c.latched {
		v = c.latch
	}
	var b byte
	switch c.access {
	case pitAccessMSB:
		b = byte(v >> 8)
		c.latched = false
	case pitAccessLOHI:
		if c.readHigh {
			b = byte(v >> 8)
			c.latched = false
		} else {
			b = byte(v)
		}
		c.readHigh = !c.readHigh
	default:
		b = byte(v)
		c.latched = false
	}
	return b
}

// advance runs the counter for clocks input cycles and returns how many
// times the output fired.
func (c *pitChannel) advance(clocks uint64) int {
	if !c.armed || clocks == 0 {
		return 0
	}
	if clocks < uint64(c.count) {
		c.count -= uint32(clocks)
		return 0
	}
	if c.mode == 0 {
		// Interrupt on terminal count fires once, then the counter wraps
		// and keeps running without further interrupts.
		c.armed = false
		c.count = 0x10000 - uint32((clocks-uint64(c.count))%0x10000)
		return 1
	}
	past := clocks - uint64(c.count)
	c.count = c.reload - uint32(past%uint64(c.reload))
	return 1 + int(past/uint64(c.reload))
}

// PITDevice is the 8254 interval timer. Only channel 0, wired to IRQ 0, is
// modelled. Time passes only when Advance is called.
type PITDevice struct {
	lock      sync.Mutex
	irqRaiser InterruptRaiser
	ch0       pitChannel

	Debug bool
}

// NewPITDevice creates a timer that signals irqRaiser on IRQ 0.
func NewPITDevice(irqRaiser InterruptRaiser) *PITDevice {
	return &PITDevice{irqRaiser: irqRaiser, ch0: pitChannel{access: pitAccessLOHI, mode: 3}}
}

// HandleIO implements portio.PioDevice.
func (p *PITDevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("PITDevice: I/O size %d not supported for port 0x%x", size, port)
	}
	switch port {
	case PITChannel0Port:
		if direction == portio.IODirectionOut {
			p.ch0.writeData(data[0])
		} else {
			data[0] = p.ch0.readData()
		}
	case PITCommandPort:
		if direction != portio.IODirectionOut {
			data[0] = 0xFF
			return nil
		}
		p.command(data[0])
	default:
		// Channels 1 and 2 are not connected.
		if direction != portio.IODirectionOut {
			data[0] = 0xFF
		}
	}
	return nil
}

func (p *PITDevice) command(val byte) {
	channel := val >> 6
	access := (val >> 4) & 3
	mode := (val >> 1) & 7
	if mode > 5 {
		mode -= 4
	}
	if p.Debug {
		log.Printf("PITDevice: command 0x%02x: channel %d access %d mode %d", val, channel, access, mode)
	}
	if channel == pitReadBack {
		log.Printf("PITDevice: read-back command 0x%02x ignored", val)
		return
	}
	if channel != 0 {
		return
	}
	c := &p.ch0
	if access == pitAccessLatch {
		if !c.latched {
			c.latched = true
			c.latch = uint16(c.count)
		}
		return
	}
	c.access = access
	c.mode = mode
	c.armed = false
	c.writeHigh, c.readHigh, c.latched = false, false, false
}

// Advance runs channel 0 for clocks input cycles (1.193182 MHz) and raises
// IRQ 0 if its output fired. It returns the number of times it fired.
func (p *PITDevice) Advance(clocks uint64) int {
	p.lock.Lock()
	fired := p.ch0.advance(clocks)
	p.lock.Unlock()

	if fired > 0 && p.irqRaiser != nil {
		p.irqRaiser.RaiseIRQ(TimerIRQ)
	}
	return fired
}

// Reload returns the programmed period of channel 0 in input cycles, or 0
// while it is not armed.
func (p *PITDevice) Reload() uint32 {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.ch0.armed {
		return 0
	}
	return p.ch0.reload
}
