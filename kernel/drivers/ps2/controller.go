package ps2

import "example.com/ohwes/kernel/portio"

// 8042 ports.
const (
	PortData    uint16 = 0x60
	PortStatus  uint16 = 0x64 // read
	PortCommand uint16 = 0x64 // write
)

// Status register bits.
const (
	StatusOutputFull uint8 = 1 << 0 // a byte is waiting at PortData
	StatusInputFull  uint8 = 1 << 1 // the controller has not consumed the last write
)

// Controller commands.
const (
	CmdReadConfig   uint8 = 0x20
	CmdWriteConfig  uint8 = 0x60
	CmdDisablePort1 uint8 = 0xAD
	CmdEnablePort1  uint8 = 0xAE
	CmdSelfTest     uint8 = 0xAA
	CmdTestPort1    uint8 = 0xAB
)

// Controller self-test and port test results.
const (
	ControllerTestPass uint8 = 0x55
	PortTestPass       uint8 = 0x00
)

// Configuration byte bits.
const (
	ConfigPort1Interrupt   uint8 = 1 << 0
	ConfigPort2Interrupt   uint8 = 1 << 1
	ConfigPort1ClockOff    uint8 = 1 << 4
	ConfigPort1Translation uint8 = 1 << 6
)

// Controller is the 8042. It implements Channel for the device on port 1.
// Status polling has no bound: a controller that never becomes ready hangs
// the caller, as on the real machine.
type Controller struct {
	ports portio.Ports
	mask  portio.InterruptMasker
}

// NewController returns a controller using p for port I/O and m for
// critical sections.
func NewController(p portio.Ports, m portio.InterruptMasker) *Controller {
	return &Controller{ports: p, mask: m}
}

func (c *Controller) waitWrite() {
	for c.ports.ReadPort(PortStatus)&StatusInputFull != 0 {
	}
}

func (c *Controller) waitRead() {
	for c.ports.ReadPort(PortStatus)&StatusOutputFull == 0 {
	}
}

// WriteData sends v to the data port once the input buffer is empty.
func (c *Controller) WriteData(v uint8) {
	c.waitWrite()
	c.ports.WritePort(PortData, v)
}

// ReadData waits for the output buffer and reads the data port.
func (c *Controller) ReadData() uint8 {
	c.waitRead()
	return c.ports.ReadPort(PortData)
}

// Command sends a controller command with no argument or reply.
func (c *Controller) Command(cmd uint8) {
	c.waitWrite()
	c.ports.WritePort(PortCommand, cmd)
}

// Query sends cmd and returns the controller's one-byte reply. Both steps
// run in one critical section so a handler cannot take the reply.
func (c *Controller) Query(cmd uint8) (v uint8) {
	portio.Critical(c.mask, func() {
		c.Command(cmd)
		v = c.ReadData()
	})
	return v
}

// CommandWithData sends cmd followed by its argument byte in one critical
// section.
func (c *Controller) CommandWithData(cmd, arg uint8) {
	portio.Critical(c.mask, func() {
		c.Command(cmd)
		c.WriteData(arg)
	})
}

// ReadConfig returns the configuration byte.
func (c *Controller) ReadConfig() uint8 { return c.Query(CmdReadConfig) }

// WriteConfig replaces the configuration byte.
func (c *Controller) WriteConfig(cfg uint8) { c.CommandWithData(CmdWriteConfig, cfg) }

// EnablePort1 turns on the first PS/2 port.
func (c *Controller) EnablePort1() { c.Command(CmdEnablePort1) }

// DisablePort1 turns off the first PS/2 port.
func (c *Controller) DisablePort1() { c.Command(CmdDisablePort1) }

// SelfTest runs the controller self-test.
func (c *Controller) SelfTest() bool { return c.Query(CmdSelfTest) == ControllerTestPass }

// TestPort1 runs the interface test of the first port.
func (c *Controller) TestPort1() bool { return c.Query(CmdTestPort1) == PortTestPass }

// Flush discards any bytes waiting in the output buffer.
func (c *Controller) Flush() {
	for c.ports.ReadPort(PortStatus)&StatusOutputFull != 0 {
		c.ports.ReadPort(PortData)
	}
}
