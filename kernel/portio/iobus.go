package portio

import (
	"fmt"
	"log"
	"sync"
)

// I/O directions passed to PioDevice.HandleIO.
const (
	IODirectionIn  uint8 = 0 // read from device
	IODirectionOut uint8 = 1 // write to device
)

// floatingBus is what a read from an unclaimed port returns.
const floatingBus uint8 = 0xFF

// PioDevice is a port I/O device attached to an IOBus.
type PioDevice interface {
	HandleIO(port uint16, direction uint8, size uint8, data []byte) error
}

// IOBus routes port accesses to registered devices. It implements Ports, so
// drivers run against simulated hardware unchanged.
type IOBus struct {
	mu    sync.RWMutex
	ports map[uint16]PioDevice

	// Debug logs accesses to ports no device claims.
	Debug bool
}

// NewIOBus creates an empty bus.
func NewIOBus() *IOBus {
	return &IOBus{ports: make(map[uint16]PioDevice)}
}

// RegisterDevice attaches device to every port in [startPort, endPort].
func (bus *IOBus) RegisterDevice(startPort, endPort uint16, device PioDevice) {
	if device == nil {
		log.Printf("IOBus: nil device for ports 0x%x-0x%x ignored", startPort, endPort)
		return
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for port := startPort; port <= endPort; port++ {
		if existing, ok := bus.ports[port]; ok && bus.Debug {
			log.Printf("IOBus: port 0x%x moves from %T to %T", port, existing, device)
		}
		bus.ports[port] = device
		if port == 0xFFFF {
			break
		}
	}
}

// HandleIO routes one access to the device owning port.
func (bus *IOBus) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	bus.mu.RLock()
	device, ok := bus.ports[port]
	bus.mu.RUnlock()
	if !ok {
		return fmt.Errorf("IOBus: unhandled I/O to port 0x%x", port)
	}
	return device.HandleIO(port, direction, size, data)
}

// ReadPort implements Ports. Unclaimed ports and device errors read as 0xFF.
func (bus *IOBus) ReadPort(port uint16) uint8 {
	data := []byte{floatingBus}
	if err := bus.HandleIO(port, IODirectionIn, 1, data); err != nil {
		if bus.Debug {
			log.Printf("IOBus: IN 0x%x: %v", port, err)
		}
		return floatingBus
	}
	return data[0]
}

// WritePort implements Ports. Writes to unclaimed ports are dropped.
func (bus *IOBus) WritePort(port uint16, v uint8) {
	if err := bus.HandleIO(port, IODirectionOut, 1, []byte{v}); err != nil && bus.Debug {
		log.Printf("IOBus: OUT 0x%x <- 0x%02x: %v", port, v, err)
	}
}
