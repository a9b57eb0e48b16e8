// Package pic programs the cascaded 8259A interrupt controllers.
package pic

import "example.com/ohwes/kernel/portio"

// Ports of the master and slave controllers.
const (
	MasterCommand uint16 = 0x20
	MasterData    uint16 = 0x21
	SlaveCommand  uint16 = 0xA0
	SlaveData     uint16 = 0xA1
)

const (
	icw1Init    uint8 = 0x11 // edge triggered, cascade, ICW4 follows
	icw4x86     uint8 = 0x01 // 8086 mode
	cascadeLine uint8 = 2    // slave sits on master line 2
	ocwEOI      uint8 = 0x20 // non-specific end of interrupt

	// LinesPerChip is the number of IRQ lines per 8259.
	LinesPerChip = 8
)

// Controller is the master/slave pair.
type Controller struct {
	ports portio.Ports
	mask  portio.InterruptMasker
}

// New returns a controller using p for port I/O and m for critical sections.
func New(p portio.Ports, m portio.InterruptMasker) *Controller {
	return &Controller{ports: p, mask: m}
}

// Remap moves IRQ 0-7 to masterBase and IRQ 8-15 to slaveBase, away from the
// CPU exception vectors. The existing masks are kept.
func (c *Controller) Remap(masterBase, slaveBase uint8) {
	portio.Critical(c.mask, func() {
		m1 := c.ports.ReadPort(MasterData)
		m2 := c.ports.ReadPort(SlaveData)

		c.ports.WritePort(MasterCommand, icw1Init)
		c.ports.WritePort(SlaveCommand, icw1Init)
		c.ports.WritePort(MasterData, masterBase)
		c.ports.WritePort(SlaveData, slaveBase)
		c.ports.WritePort(MasterData, 1<<cascadeLine)
		c.ports.WritePort(SlaveData, cascadeLine)
		c.ports.WritePort(MasterData, icw4x86)
		c.ports.WritePort(SlaveData, icw4x86)

		c.ports.WritePort(MasterData, m1)
		c.ports.WritePort(SlaveData, m2)
	})
}

// SetMask writes both interrupt mask registers. Bit n masks IRQ n.
func (c *Controller) SetMask(mask uint16) {
	c.ports.WritePort(MasterData, uint8(mask))
	c.ports.WritePort(SlaveData, uint8(mask>>8))
}

// Mask returns both interrupt mask registers.
func (c *Controller) Mask() uint16 {
	return uint16(c.ports.ReadPort(MasterData)) | uint16(c.ports.ReadPort(SlaveData))<<8
}

// Unmask enables IRQ line.
func (c *Controller) Unmask(line uint8) {
	portio.Critical(c.mask, func() { c.SetMask(c.Mask() &^ (1 << line)) })
}

// Disable masks IRQ line.
func (c *Controller) Disable(line uint8) {
	portio.Critical(c.mask, func() { c.SetMask(c.Mask() | 1<<line) })
}

// EndOfInterrupt acknowledges IRQ line. Lines on the slave need an EOI on
// both chips.
func (c *Controller) EndOfInterrupt(line uint8) {
	if line >= LinesPerChip {
		c.ports.WritePort(SlaveCommand, ocwEOI)
	}
	c.ports.WritePort(MasterCommand, ocwEOI)
}
