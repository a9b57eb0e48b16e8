//go:build linux

package sim

import (
	"fmt"

	"golang.org/x/sys/unix"

	"example.com/ohwes/kernel/x86"
)

// allocMemory maps size bytes of zeroed anonymous memory for the guest.
func allocMemory(size uint32) (x86.Memory, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("sim: mmap %d bytes of guest memory: %w", size, err)
	}
	return x86.Memory(b), nil
}

func freeMemory(m x86.Memory) error {
	return unix.Munmap(m)
}
