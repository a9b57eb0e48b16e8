//go:build !linux

package sim

import "example.com/ohwes/kernel/x86"

func allocMemory(size uint32) (x86.Memory, error) {
	return make(x86.Memory, size), nil
}

func freeMemory(x86.Memory) error { return nil }
