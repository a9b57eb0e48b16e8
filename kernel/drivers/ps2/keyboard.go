package ps2

import "fmt"

// Keyboard commands.
const (
	KbdSetLEDs       uint8 = 0xED
	KbdEcho          uint8 = 0xEE
	KbdScancodeSet   uint8 = 0xF0
	KbdEnableScan    uint8 = 0xF4
	KbdDisableScan   uint8 = 0xF5
	KbdSelfTest      uint8 = 0xFF
	scancodeSetQuery uint8 = 0
)

// LED bits for SetLEDs.
const (
	LEDScrollLock uint8 = 1 << 0
	LEDNumLock    uint8 = 1 << 1
	LEDCapsLock   uint8 = 1 << 2
)

// Keyboard is the device on the first PS/2 port.
type Keyboard struct {
	ctl *Controller
	eng *Engine
}

// NewKeyboard returns the keyboard behind ctl.
func NewKeyboard(ctl *Controller) *Keyboard {
	return &Keyboard{ctl: ctl, eng: NewEngine(ctl)}
}

// Engine returns the command engine for commands without a typed wrapper.
func (k *Keyboard) Engine() *Engine { return k.eng }

// Init enables the port 1 interrupt and the port itself, then disables
// scanning so no key events arrive before the kernel is ready for them.
func (k *Keyboard) Init() error {
	cfg := k.ctl.ReadConfig()
	k.ctl.WriteConfig(cfg | ConfigPort1Interrupt)
	k.ctl.EnablePort1()
	if err := k.eng.SendCommand(KbdDisableScan).Err(); err != nil {
		return fmt.Errorf("keyboard init: %w", err)
	}
	return nil
}

// SelfTest resets the keyboard and reports whether the self-test result
// that follows the acknowledgement is the pass code.
func (k *Keyboard) SelfTest() bool {
	if !k.eng.SendCommand(KbdSelfTest).OK() {
		return false
	}
	return k.ctl.ReadData() == ResponsePass
}

// SetLEDs sets the lock indicators to the LED* bits in mask.
func (k *Keyboard) SetLEDs(mask uint8) Outcome {
	return k.eng.SendCommand(KbdSetLEDs, mask&(LEDScrollLock|LEDNumLock|LEDCapsLock))
}

// EnableScanning starts key event delivery.
func (k *Keyboard) EnableScanning() Outcome { return k.eng.SendCommand(KbdEnableScan) }

// DisableScanning stops key event delivery.
func (k *Keyboard) DisableScanning() Outcome { return k.eng.SendCommand(KbdDisableScan) }

// SetScancodeSet selects scancode set 1, 2 or 3.
func (k *Keyboard) SetScancodeSet(set uint8) (Outcome, error) {
	if set < 1 || set > 3 {
		return Outcome{}, fmt.Errorf("ps2: no scancode set %d", set)
	}
	return k.eng.SendCommand(KbdScancodeSet, set), nil
}

// ScancodeSet asks the keyboard which scancode set is active.
func (k *Keyboard) ScancodeSet() (uint8, error) {
	if err := k.eng.SendCommand(KbdScancodeSet, scancodeSetQuery).Err(); err != nil {
		return 0, err
	}
	return k.ctl.ReadData(), nil
}

// Echo checks the keyboard is alive. The keyboard answers the echo command
// with 0xEE instead of an acknowledgement.
func (k *Keyboard) Echo() bool {
	out := k.eng.SendCommand(KbdEcho)
	return out.Status == StatusUnexpected && out.Response == ResponseEcho
}
