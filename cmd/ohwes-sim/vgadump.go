package main

import (
	"fmt"
	"io"

	"example.com/ohwes/kernel/drivers/vga"
	"example.com/ohwes/kernel/portio"
)

// dumpVGA prints the cursor registers. Reading them moves the CRTC index,
// so the index is put back before returning and the display is left as it
// was.
func dumpVGA(out io.Writer, p portio.Ports, m portio.InterruptMasker) {
	misc := p.ReadPort(vga.PortMiscOutputRead)
	fmt.Fprintf(out, "misc output  0x%02x (IOAS=%d)\n", misc, misc&vga.MiscIOAS)
	if misc&vga.MiscIOAS == 0 {
		fmt.Fprintln(out, "CRTC is at 0x3B4, not probed")
		return
	}

	index := p.ReadPort(vga.PortCRTCAddr)
	defer p.WritePort(vga.PortCRTCAddr, index)

	d := vga.New(p, m)
	for _, reg := range []uint8{vga.CRTCCursorStart, vga.CRTCCursorEnd} {
		fmt.Fprintf(out, "CRTC 0x%02x    0x%02x\n", reg, d.CRTCRead(reg))
	}
	fmt.Fprintf(out, "cursor       %d\n", d.Cursor())
}
