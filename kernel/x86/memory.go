package x86

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a physical range does not fit in memory.
var ErrOutOfRange = errors.New("x86: physical range outside memory")

// Memory is the physical address space the descriptor tables live in. On the
// target it covers low memory identity mapped at address zero; on a host it
// is an ordinary byte slice.
type Memory []byte

// Region returns the size bytes starting at physical address base.
func (m Memory) Region(base, size uint32) ([]byte, error) {
	end := uint64(base) + uint64(size)
	if end > uint64(len(m)) {
		return nil, fmt.Errorf("%w: [0x%x, 0x%x) beyond 0x%x", ErrOutOfRange, base, end, len(m))
	}
	return m[base:end:end], nil
}

// Zero fills size bytes at base with zeroes.
func (m Memory) Zero(base, size uint32) error {
	r, err := m.Region(base, size)
	if err != nil {
		return err
	}
	clear(r)
	return nil
}
