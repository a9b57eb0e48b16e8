package devices

import (
	"fmt"
	"log"
	"sync"

	"example.com/ohwes/kernel/portio"
)

// VGADevice models the VGA registers reached through port I/O: the
// miscellaneous output register, the CRTC and the attribute controller with
// its address/data flip-flop. The CRTC and Input Status 1 answer at 0x3Dx
// only while IOAS is set and at 0x3Bx only while it is clear.
type VGADevice struct {
	lock sync.Mutex

	misc      byte
	crtcIndex byte
	crtc      [0x19]byte

	attrIndex byte
	attrFlip  bool // true when the next 0x3C0 write is data
	attr      [0x15]byte

	Debug bool
}

// NewVGADevice returns a controller in monochrome addressing (IOAS clear),
// as left by a BIOS that did not set colour mode.
func NewVGADevice() *VGADevice {
	v := &VGADevice{}
	v.crtc[0x0A] = 0x0D // cursor start scanline
	v.crtc[0x0B] = 0x0E // cursor end scanline
	return v
}

func (v *VGADevice) colour() bool { return v.misc&vgaMiscIOAS != 0 }

// HandleIO implements portio.PioDevice.
func (v *VGADevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("VGADevice: I/O size %d not supported for port 0x%x", size, port)
	}

	crtcAddr, crtcData, is1 := vgaCRTCAddrMono, vgaCRTCDataMono, vgaIS1Mono
	if v.colour() {
		crtcAddr, crtcData, is1 = vgaCRTCAddr, vgaCRTCData, vgaIS1
	}

	in := direction == portio.IODirectionIn
	switch {
	case port == vgaMiscRead && in:
		data[0] = v.misc
	case port == vgaMiscWrite && !in:
		v.misc = data[0]
	case port == crtcAddr:
		if in {
			data[0] = v.crtcIndex
		} else {
			v.crtcIndex = data[0]
		}
	case port == crtcData:
		if int(v.crtcIndex) >= len(v.crtc) {
			if in {
				data[0] = 0xFF
			}
			break
		}
		if in {
			data[0] = v.crtc[v.crtcIndex]
		} else {
			v.crtc[v.crtcIndex] = data[0]
		}
	case port == is1 && in:
		v.attrFlip = false
		data[0] = 0
	case port == vgaAttrAddr && in:
		data[0] = v.attrIndex
	case port == vgaAttrAddr:
		if v.attrFlip {
			if i := v.attrIndex & vgaAttrIndex; int(i) < len(v.attr) {
				v.attr[i] = data[0]
			}
		} else {
			v.attrIndex = data[0]
		}
		v.attrFlip = !v.attrFlip
	case port == vgaAttrDataRead && in:
		data[0] = 0xFF
		if i := v.attrIndex & vgaAttrIndex; int(i) < len(v.attr) {
			data[0] = v.attr[i]
		}
	default:
		// Ports of the inactive addressing mode float.
		if in {
			data[0] = 0xFF
		}
		if v.Debug {
			log.Printf("VGADevice: ignored access to port 0x%x (colour=%v)", port, v.colour())
		}
	}
	return nil
}

// CRTC returns CRT controller register i.
func (v *VGADevice) CRTC(i uint8) byte {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.crtc[i]
}

// Attr returns attribute controller register i.
func (v *VGADevice) Attr(i uint8) byte {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.attr[i]
}

// PaletteEnabled reports whether the last attribute address write kept PAS
// set, which is required for the display to show anything.
func (v *VGADevice) PaletteEnabled() bool {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.attrIndex&vgaAttrPAS != 0
}

// Misc returns the miscellaneous output register.
func (v *VGADevice) Misc() byte {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.misc
}
