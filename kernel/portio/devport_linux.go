//go:build linux

package portio

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultDevPort is the Linux character device exposing the I/O port space.
// Offsets into the file are port numbers. Opening it needs CAP_SYS_RAWIO.
const DefaultDevPort = "/dev/port"

// DevPort implements Ports on a Linux host through /dev/port.
type DevPort struct {
	fd   int
	path string

	mu  sync.Mutex
	err error // first I/O failure
}

// OpenDevPort opens path (normally DefaultDevPort) for port access.
func OpenDevPort(path string) (*DevPort, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DevPort{fd: fd, path: path}, nil
}

// ReadPort reads one byte at offset port. A failed read returns 0xFF and is
// recorded for Err.
func (d *DevPort) ReadPort(port uint16) uint8 {
	var b [1]byte
	n, err := unix.Pread(d.fd, b[:], int64(port))
	if err != nil {
		d.fail(fmt.Errorf("inb 0x%x from %s: %w", port, d.path, err))
		return floatingBus
	}
	if n == 0 {
		return floatingBus
	}
	return b[0]
}

// WritePort writes one byte at offset port. Failures are recorded for Err.
func (d *DevPort) WritePort(port uint16, v uint8) {
	if _, err := unix.Pwrite(d.fd, []byte{v}, int64(port)); err != nil {
		d.fail(fmt.Errorf("outb 0x%x to %s: %w", port, d.path, err))
	}
}

func (d *DevPort) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
}

// Err returns the first port access failure, if any. The Ports interface
// has no error returns, so callers check this after a sequence.
func (d *DevPort) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close closes the device file.
func (d *DevPort) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
