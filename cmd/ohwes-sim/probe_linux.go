//go:build linux

package main

import (
	"io"

	"example.com/ohwes/kernel/portio"
)

// probeVGA reads the host's real VGA registers through /dev/port.
func probeVGA(out io.Writer) error {
	dev, err := portio.OpenDevPort(portio.DefaultDevPort)
	if err != nil {
		return err
	}
	defer dev.Close()

	dumpVGA(out, dev, &portio.HostMask{})
	return dev.Err()
}
