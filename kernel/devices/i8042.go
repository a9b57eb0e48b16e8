package devices

import (
	"fmt"
	"log"
	"sync"

	"example.com/ohwes/kernel/portio"
)

// Keyboard protocol bytes.
const (
	kbdACK    byte = 0xFA
	kbdResend byte = 0xFE
	kbdPass   byte = 0xAA
	kbdEcho   byte = 0xEE
)

// KeyboardDevice is an 8042 controller with a keyboard on its first port.
// Every byte written to the data port gets the keyboard's reply in the
// output buffer before the write returns, so a driver polling the status
// register never waits.
type KeyboardDevice struct {
	lock      sync.Mutex
	irqRaiser InterruptRaiser

	config     byte
	port1On    bool
	pendingCmd byte // controller command waiting for its data byte
	outBuf     []byte
	last       byte

	// keyboard state
	scanning    bool
	scancodeSet byte
	leds        byte
	argFor      byte // keyboard command waiting for its argument
	scripted    [][]byte
	received    []byte

	Debug bool
}

// NewKeyboardDevice returns a controller after a successful POST: port 1
// clock enabled, translation on, scanning enabled with scancode set 2.
func NewKeyboardDevice(irqRaiser InterruptRaiser) *KeyboardDevice {
	return &KeyboardDevice{
		irqRaiser:   irqRaiser,
		config:      0x40 | 0x04,
		port1On:     true,
		scanning:    true,
		scancodeSet: 2,
	}
}

// HandleIO implements portio.PioDevice.
func (k *KeyboardDevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	k.lock.Lock()
	defer k.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("KeyboardDevice: I/O size %d not supported for port 0x%x", size, port)
	}

	switch {
	case port == I8042StatusPort && direction == portio.IODirectionIn:
		st := i8042StatusSystem
		if len(k.outBuf) > 0 {
			st |= i8042StatusOBF
		}
		data[0] = st
	case port == I8042DataPort && direction == portio.IODirectionIn:
		if len(k.outBuf) > 0 {
			k.last = k.outBuf[0]
			k.outBuf = k.outBuf[1:]
		}
		data[0] = k.last
	case port == I8042StatusPort:
		k.controllerCommand(data[0])
	case port == I8042DataPort:
		k.dataWrite(data[0])
	default:
		return fmt.Errorf("KeyboardDevice: unhandled I/O to port 0x%x", port)
	}
	return nil
}

func (k *KeyboardDevice) controllerCommand(cmd byte) {
	if k.Debug {
		log.Printf("KeyboardDevice: controller command 0x%02x", cmd)
	}
	switch cmd {
	case 0x20:
		k.outBuf = append(k.outBuf, k.config)
	case 0x60:
		k.pendingCmd = cmd
	case 0xAD:
		k.port1On = false
		k.config |= 0x10
	case 0xAE:
		k.port1On = true
		k.config &^= 0x10
	case 0xAA:
		k.outBuf = append(k.outBuf, 0x55)
	case 0xAB:
		k.outBuf = append(k.outBuf, 0x00)
	}
}

func (k *KeyboardDevice) dataWrite(v byte) {
	if k.pendingCmd == 0x60 {
		k.config = v
		k.pendingCmd = 0
		return
	}
	k.received = append(k.received, v)
	if k.Debug {
		log.Printf("KeyboardDevice: keyboard <- 0x%02x", v)
	}
	if len(k.scripted) > 0 {
		reply := k.scripted[0]
		k.scripted = k.scripted[1:]
		k.send(reply...)
		return
	}
	k.send(k.keyboardReply(v)...)
}

// keyboardReply is what a well-behaved keyboard answers to v.
func (k *KeyboardDevice) keyboardReply(v byte) []byte {
	if arg := k.argFor; arg != 0 {
		k.argFor = 0
		switch arg {
		case 0xED:
			k.leds = v & 7
		case 0xF0:
			if v == 0 {
				return []byte{kbdACK, k.scancodeSet}
			}
			if v > 3 {
				return []byte{kbdResend}
			}
			k.scancodeSet = v
		}
		return []byte{kbdACK}
	}

	switch v {
	case 0xED, 0xF0:
		k.argFor = v
		return []byte{kbdACK}
	case kbdEcho:
		return []byte{kbdEcho}
	case 0xF2:
		return []byte{kbdACK, 0xAB, 0x83}
	case 0xF4:
		k.scanning = true
		return []byte{kbdACK}
	case 0xF5:
		k.scanning = false
		return []byte{kbdACK}
	case 0xFF:
		k.scanning = true
		k.leds = 0
		return []byte{kbdACK, kbdPass}
	}
	return []byte{kbdResend}
}

// send places keyboard bytes in the output buffer and raises IRQ 1 when the
// port interrupt is enabled.
func (k *KeyboardDevice) send(b ...byte) {
	if len(b) == 0 {
		return
	}
	k.outBuf = append(k.outBuf, b...)
	if k.port1On && k.config&0x01 != 0 && k.irqRaiser != nil {
		k.irqRaiser.RaiseIRQ(KeyboardIRQ)
	}
}

// ScriptReplies overrides the keyboard: the n-th byte written after this
// call is answered with replies[n]. Once the script runs out the keyboard
// behaves normally again.
func (k *KeyboardDevice) ScriptReplies(replies ...[]byte) {
	k.lock.Lock()
	defer k.lock.Unlock()
	k.scripted = append(k.scripted, replies...)
}

// PressKey delivers a scancode if scanning is enabled. It reports whether
// the key was delivered.
func (k *KeyboardDevice) PressKey(scancode byte) bool {
	k.lock.Lock()
	defer k.lock.Unlock()
	if !k.scanning || !k.port1On {
		return false
	}
	k.send(scancode)
	return true
}

// Received returns every byte the keyboard has received.
func (k *KeyboardDevice) Received() []byte {
	k.lock.Lock()
	defer k.lock.Unlock()
	return append([]byte(nil), k.received...)
}

// Config returns the controller configuration byte.
func (k *KeyboardDevice) Config() byte {
	k.lock.Lock()
	defer k.lock.Unlock()
	return k.config
}

// Scanning reports whether the keyboard sends key events.
func (k *KeyboardDevice) Scanning() bool {
	k.lock.Lock()
	defer k.lock.Unlock()
	return k.scanning
}

// LEDs returns the lock indicator state.
func (k *KeyboardDevice) LEDs() byte {
	k.lock.Lock()
	defer k.lock.Unlock()
	return k.leds
}
