package portio

import "sync"

// HostMask is an InterruptMasker for code running as an ordinary host process
// (for example against DevPort). There is no interrupt flag to clear, so it
// serializes register-pair sequences across goroutines with a mutex instead.
// Nested use from the same goroutine deadlocks, as nested cli/popf pairs are
// not needed by any driver.
type HostMask struct {
	mu sync.Mutex
}

// DisableInterrupts locks the mask. It always reports the previous state as
// enabled.
func (h *HostMask) DisableInterrupts() bool {
	h.mu.Lock()
	return true
}

// RestoreInterrupts unlocks the mask.
func (h *HostMask) RestoreInterrupts(bool) {
	h.mu.Unlock()
}
