// Package vga programs the VGA display controller in colour text mode.
package vga

import "example.com/ohwes/kernel/portio"

// VGA ports used in colour mode (IOAS set).
const (
	PortMiscOutputRead  uint16 = 0x3CC
	PortMiscOutputWrite uint16 = 0x3C2
	PortCRTCAddr        uint16 = 0x3D4
	PortCRTCData        uint16 = 0x3D5
	PortInputStatus1    uint16 = 0x3DA
	PortAttrAddr        uint16 = 0x3C0 // also the attribute data write port
	PortAttrDataRead    uint16 = 0x3C1
)

const (
	// MiscIOAS maps the CRTC to 0x3Dx instead of 0x3Bx.
	MiscIOAS uint8 = 0x01
	// AttrPAS keeps the palette visible while the attribute address is written.
	AttrPAS uint8 = 0x20
	// AttrAddrMask selects the register index bits of the attribute address.
	AttrAddrMask uint8 = 0x1F
)

// CRTC registers used for the text cursor.
const (
	CRTCCursorStart uint8 = 0x0A
	CRTCCursorEnd   uint8 = 0x0B
	CRTCCursorHigh  uint8 = 0x0E
	CRTCCursorLow   uint8 = 0x0F
	cursorDisable   uint8 = 0x20
)

// Display is the VGA controller.
type Display struct {
	ports portio.Ports
	mask  portio.InterruptMasker
	crtc  portio.IndexedRegister
}

// New returns a display using p for port I/O and m for critical sections.
func New(p portio.Ports, m portio.InterruptMasker) *Display {
	return &Display{
		ports: p,
		mask:  m,
		crtc:  portio.IndexedRegister{Ports: p, Mask: m, Addr: PortCRTCAddr, Data: PortCRTCData},
	}
}

// Init sets IOAS so the colour text mode port addresses are decoded.
func (d *Display) Init() {
	d.ports.WritePort(PortMiscOutputWrite, d.ports.ReadPort(PortMiscOutputRead)|MiscIOAS)
}

// CRTCRead reads CRT controller register reg.
func (d *Display) CRTCRead(reg uint8) uint8 { return d.crtc.Read(reg) }

// CRTCWrite writes CRT controller register reg.
func (d *Display) CRTCWrite(reg, v uint8) { d.crtc.Write(reg, v) }

// AttrRead reads attribute controller register reg. Reading Input Status 1
// first resets the address/data flip-flop to the address state.
func (d *Display) AttrRead(reg uint8) (v uint8) {
	portio.Critical(d.mask, func() {
		d.ports.ReadPort(PortInputStatus1)
		d.ports.WritePort(PortAttrAddr, AttrPAS|reg&AttrAddrMask)
		v = d.ports.ReadPort(PortAttrDataRead)
	})
	return v
}

// AttrWrite writes attribute controller register reg.
func (d *Display) AttrWrite(reg, v uint8) {
	portio.Critical(d.mask, func() {
		d.ports.ReadPort(PortInputStatus1)
		d.ports.WritePort(PortAttrAddr, AttrPAS|reg&AttrAddrMask)
		d.ports.WritePort(PortAttrAddr, v)
	})
}

// SetCursor moves the text cursor to character cell pos. Both halves are
// written in one critical section so the cursor never points at a cell mixed
// from the old and new positions.
func (d *Display) SetCursor(pos uint16) {
	portio.Critical(d.mask, func() {
		d.ports.WritePort(PortCRTCAddr, CRTCCursorHigh)
		d.ports.WritePort(PortCRTCData, uint8(pos>>8))
		d.ports.WritePort(PortCRTCAddr, CRTCCursorLow)
		d.ports.WritePort(PortCRTCData, uint8(pos))
	})
}

// Cursor returns the text cursor cell.
func (d *Display) Cursor() (pos uint16) {
	portio.Critical(d.mask, func() {
		d.ports.WritePort(PortCRTCAddr, CRTCCursorHigh)
		hi := d.ports.ReadPort(PortCRTCData)
		d.ports.WritePort(PortCRTCAddr, CRTCCursorLow)
		pos = uint16(hi)<<8 | uint16(d.ports.ReadPort(PortCRTCData))
	})
	return pos
}

// EnableCursor shows or hides the text cursor.
func (d *Display) EnableCursor(on bool) {
	d.crtc.Modify(CRTCCursorStart, func(v uint8) uint8 {
		if on {
			return v &^ cursorDisable
		}
		return v | cursorDisable
	})
}
