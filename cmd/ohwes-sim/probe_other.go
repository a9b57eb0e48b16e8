//go:build !linux

package main

import (
	"errors"
	"io"
)

func probeVGA(io.Writer) error {
	return errors.New("-probe-vga needs /dev/port, which only Linux provides")
}
