package devices

import (
	"fmt"
	"io"
	"log"
	"sync"

	"example.com/ohwes/kernel/portio"
)

// SerialPortDevice is a 16550A UART whose transmitter writes straight to an
// io.Writer. The transmitter is always ready, so THRE never clears.
type SerialPortDevice struct {
	lock      sync.Mutex
	out       io.Writer
	irqRaiser InterruptRaiser
	base      uint16

	dll, dlh byte
	ier      byte
	fcr      byte
	lcr      byte
	mcr      byte
	scr      byte
	thrIRQ   bool // THRE interrupt pending until IIR is read

	Debug bool
}

// NewSerialPortDevice creates a UART at base writing to w. irqRaiser may be
// nil if the UART interrupt is never enabled.
func NewSerialPortDevice(base uint16, w io.Writer, irqRaiser InterruptRaiser) *SerialPortDevice {
	return &SerialPortDevice{out: w, irqRaiser: irqRaiser, base: base}
}

func (s *SerialPortDevice) dlab() bool { return s.lcr&uartLCRDLAB != 0 }

// HandleIO implements portio.PioDevice.
func (s *SerialPortDevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("SerialPortDevice: I/O size %d not supported for port 0x%x", size, port)
	}
	reg := port - s.base

	if direction == portio.IODirectionOut {
		return s.write(reg, data[0])
	}
	data[0] = s.read(reg)
	return nil
}

func (s *SerialPortDevice) write(reg uint16, val byte) error {
	if s.Debug && reg != uartData {
		log.Printf("SerialPortDevice: reg %d <- 0x%02x", reg, val)
	}
	switch reg {
	case uartData:
		if s.dlab() {
			s.dll = val
			return nil
		}
		if _, err := s.out.Write([]byte{val}); err != nil {
			return fmt.Errorf("SerialPortDevice: output: %w", err)
		}
		s.raiseTHRE()
	case uartIER:
		if s.dlab() {
			s.dlh = val
			return nil
		}
		s.ier = val & 0x0F
		s.raiseTHRE()
	case uartIIRFCR:
		s.fcr = val
	case uartLCR:
		s.lcr = val
	case uartMCR:
		s.mcr = val
	case uartScratch:
		s.scr = val
	case uartLSR, uartMSR:
		// read only
	default:
		return fmt.Errorf("SerialPortDevice: unhandled OUT to register %d", reg)
	}
	return nil
}

// raiseTHRE signals "transmitter empty" when the interrupt is enabled and
// routed through OUT2.
func (s *SerialPortDevice) raiseTHRE() {
	if s.ier&uartIERTHRE == 0 || s.mcr&uartMCROUT2 == 0 {
		return
	}
	s.thrIRQ = true
	if s.irqRaiser != nil {
		s.irqRaiser.RaiseIRQ(SerialIRQ)
	}
}

func (s *SerialPortDevice) read(reg uint16) byte {
	switch reg {
	case uartData:
		if s.dlab() {
			return s.dll
		}
		return 0 // no receiver
	case uartIER:
		if s.dlab() {
			return s.dlh
		}
		return s.ier
	case uartIIRFCR:
		iir := uartIIRNone
		if s.thrIRQ {
			iir = uartIIRTHRE
			s.thrIRQ = false
		}
		if s.fcr&0x01 != 0 {
			iir |= uartIIRFIFOs
		}
		return iir
	case uartLCR:
		return s.lcr
	case uartMCR:
		return s.mcr
	case uartLSR:
		return uartLSRTHRE | uartLSRTEMT
	case uartMSR:
		return 0
	case uartScratch:
		return s.scr
	}
	return 0xFF
}

// Divisor returns the programmed baud rate divisor.
func (s *SerialPortDevice) Divisor() uint16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return uint16(s.dlh)<<8 | uint16(s.dll)
}
