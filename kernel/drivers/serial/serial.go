// Package serial drives a 16550 UART as the kernel console.
package serial

import "example.com/ohwes/kernel/portio"

// COM1 is the base port of the first serial port.
const COM1 uint16 = 0x3F8

// Register offsets from the base port.
const (
	RegData        uint16 = 0 // THR / RBR, divisor low with DLAB
	RegIntEnable   uint16 = 1 // IER, divisor high with DLAB
	RegFIFOControl uint16 = 2
	RegLineControl uint16 = 3
	RegModemCtrl   uint16 = 4
	RegLineStatus  uint16 = 5
)

const (
	lcrDLAB   uint8 = 0x80
	lcr8N1    uint8 = 0x03
	fcrEnable uint8 = 0xC7 // enable, clear both FIFOs, 14 byte threshold
	mcrDTRRTS uint8 = 0x0B // DTR, RTS, OUT2

	// LineStatusTHRE is set when the transmit holding register is empty.
	LineStatusTHRE uint8 = 0x20
)

// Console writes bytes to a UART. It implements io.Writer, which makes it
// the kernel's printk sink.
type Console struct {
	ports portio.Ports
	base  uint16
}

// New returns a console on the UART at base.
func New(p portio.Ports, base uint16) *Console {
	return &Console{ports: p, base: base}
}

// Init programs 8N1 at 115200/divisor baud with FIFOs on and UART
// interrupts off.
func (c *Console) Init(divisor uint16) {
	c.ports.WritePort(c.base+RegIntEnable, 0)
	c.ports.WritePort(c.base+RegLineControl, lcrDLAB)
	c.ports.WritePort(c.base+RegData, uint8(divisor))
	c.ports.WritePort(c.base+RegIntEnable, uint8(divisor>>8))
	c.ports.WritePort(c.base+RegLineControl, lcr8N1)
	c.ports.WritePort(c.base+RegFIFOControl, fcrEnable)
	c.ports.WritePort(c.base+RegModemCtrl, mcrDTRRTS)
}

// WriteByte sends one byte once the transmitter can take it.
func (c *Console) WriteByte(b byte) error {
	for c.ports.ReadPort(c.base+RegLineStatus)&LineStatusTHRE == 0 {
	}
	c.ports.WritePort(c.base+RegData, b)
	return nil
}

// Write sends p, translating "\n" to "\r\n".
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			c.WriteByte('\r')
		}
		c.WriteByte(b)
	}
	return len(p), nil
}
