package ps2_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"example.com/ohwes/kernel/drivers/ps2"
)

// scriptedChannel answers every byte written with the next scripted reply.
type scriptedChannel struct {
	mu      sync.Mutex
	replies []uint8
	pending []uint8
	written []uint8
}

func (c *scriptedChannel) WriteData(v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v)
	if len(c.replies) == 0 {
		panic(fmt.Sprintf("no scripted reply for byte 0x%02x", v))
	}
	c.pending = append(c.pending, c.replies[0])
	c.replies = c.replies[1:]
}

func (c *scriptedChannel) ReadData() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		panic("read with nothing pending")
	}
	v := c.pending[0]
	c.pending = c.pending[1:]
	return v
}

func TestSendCommandAcknowledged(t *testing.T) {
	ch := &scriptedChannel{replies: []uint8{ps2.ResponseACK}}
	out := ps2.NewEngine(ch).SendCommand(0xF5)
	if !out.OK() || out.Transmissions != 1 {
		t.Fatalf("outcome = %+v, want OK after 1 transmission", out)
	}
	if out.Err() != nil {
		t.Errorf("Err() = %v", out.Err())
	}
}

func TestSendCommandWithData(t *testing.T) {
	ch := &scriptedChannel{replies: []uint8{ps2.ResponseACK, ps2.ResponseACK}}
	out := ps2.NewEngine(ch).SendCommand(0xED, 0x07)
	if !out.OK() {
		t.Fatalf("outcome = %+v", out)
	}
	if fmt.Sprintf("% x", ch.written) != "ed 07" {
		t.Errorf("written = % x, want ed 07", ch.written)
	}
}

func TestSendCommandResendThenAck(t *testing.T) {
	ch := &scriptedChannel{replies: []uint8{ps2.ResponseResend, ps2.ResponseResend, ps2.ResponseACK}}
	out := ps2.NewEngine(ch).SendCommand(0xF4)
	if !out.OK() || out.Transmissions != 3 {
		t.Errorf("outcome = %+v, want OK after 3 transmissions", out)
	}
}

func TestSendCommandRetriesExhausted(t *testing.T) {
	ch := &scriptedChannel{replies: []uint8{ps2.ResponseResend, ps2.ResponseResend, ps2.ResponseResend}}
	out := ps2.NewEngine(ch).SendCommand(0xF4)
	if out.Status != ps2.StatusRetriesExhausted || out.Transmissions != ps2.MaxAttempts {
		t.Fatalf("outcome = %+v, want retries exhausted after %d", out, ps2.MaxAttempts)
	}
	if !errors.Is(out.Err(), ps2.ErrRetriesExhausted) {
		t.Errorf("Err() = %v", out.Err())
	}
	if len(ch.written) != 3 {
		t.Errorf("wrote %d bytes, want 3", len(ch.written))
	}
}

func TestSendCommandResendDuringDataRestarts(t *testing.T) {
	ch := &scriptedChannel{replies: []uint8{
		ps2.ResponseACK, ps2.ResponseResend, // command acked, data byte rejected
		ps2.ResponseACK, ps2.ResponseACK,
	}}
	out := ps2.NewEngine(ch).SendCommand(0xF0, 0x02)
	if !out.OK() || out.Transmissions != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if got := fmt.Sprintf("% x", ch.written); got != "f0 02 f0 02" {
		t.Errorf("written = %s, want f0 02 f0 02", got)
	}
}

func TestSendCommandUnexpected(t *testing.T) {
	tests := []struct {
		name    string
		data    []uint8
		replies []uint8
		written int
	}{
		{"on command", nil, []uint8{0x42}, 1},
		{"on data", []uint8{1, 2}, []uint8{ps2.ResponseACK, 0x00}, 2},
		{"after resend", nil, []uint8{ps2.ResponseResend, 0xFC}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &scriptedChannel{replies: tt.replies}
			out := ps2.NewEngine(ch).SendCommand(0xED, tt.data...)
			want := tt.replies[len(tt.replies)-1]
			if out.Status != ps2.StatusUnexpected || out.Response != want {
				t.Fatalf("outcome = %+v, want unexpected 0x%02x", out, want)
			}
			if len(ch.written) != tt.written {
				t.Errorf("wrote %d bytes, want %d", len(ch.written), tt.written)
			}
			var ue *ps2.UnexpectedResponseError
			if !errors.As(out.Err(), &ue) || ue.Response != want {
				t.Errorf("Err() = %v", out.Err())
			}
		})
	}
}

// fake8042 is a controller whose port-1 device follows a script.
type fake8042 struct {
	mu       sync.Mutex
	cfg      uint8
	out      []uint8 // output buffer
	replies  []uint8 // keyboard replies, one per data byte written
	lastCmd  uint8
	log      []string
	disabled int // depth of DisableInterrupts
}

func (f *fake8042) ReadPort(port uint16) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch port {
	case ps2.PortStatus:
		if len(f.out) > 0 {
			return ps2.StatusOutputFull
		}
		return 0
	case ps2.PortData:
		v := f.out[0]
		f.out = f.out[1:]
		return v
	}
	return 0xFF
}

func (f *fake8042) WritePort(port uint16, v uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch port {
	case ps2.PortCommand:
		f.log = append(f.log, fmt.Sprintf("cmd %02x masked=%v", v, f.disabled > 0))
		f.lastCmd = v
		switch v {
		case ps2.CmdReadConfig:
			f.out = append(f.out, f.cfg)
		case ps2.CmdSelfTest:
			f.out = append(f.out, ps2.ControllerTestPass)
		case ps2.CmdTestPort1:
			f.out = append(f.out, ps2.PortTestPass)
		}
	case ps2.PortData:
		f.log = append(f.log, fmt.Sprintf("data %02x masked=%v", v, f.disabled > 0))
		if f.lastCmd == ps2.CmdWriteConfig {
			f.cfg = v
			f.lastCmd = 0
			return
		}
		if len(f.replies) > 0 {
			f.out = append(f.out, f.replies[0])
			f.replies = f.replies[1:]
		}
	}
}

func (f *fake8042) DisableInterrupts() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled++
	return true
}

func (f *fake8042) RestoreInterrupts(bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled--
}

func TestKeyboardInitOrder(t *testing.T) {
	f := &fake8042{cfg: 0x30, replies: []uint8{ps2.ResponseACK}}
	kbd := ps2.NewKeyboard(ps2.NewController(f, f))
	if err := kbd.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	want := []string{
		"cmd 20 masked=true",
		"cmd 60 masked=true",
		"data 31 masked=true",
		"cmd ae masked=false",
		"data f5 masked=false",
	}
	if fmt.Sprint(f.log) != fmt.Sprint(want) {
		t.Errorf("sequence = %q\nwant       %q", f.log, want)
	}
	if f.cfg&ps2.ConfigPort1Interrupt == 0 {
		t.Errorf("config 0x%02x lacks port 1 interrupt", f.cfg)
	}
}

func TestKeyboardInitFails(t *testing.T) {
	f := &fake8042{replies: []uint8{ps2.ResponseResend, ps2.ResponseResend, ps2.ResponseResend}}
	err := ps2.NewKeyboard(ps2.NewController(f, f)).Init()
	if !errors.Is(err, ps2.ErrRetriesExhausted) {
		t.Errorf("Init error = %v, want ErrRetriesExhausted", err)
	}
}

func TestKeyboardSelfTest(t *testing.T) {
	tests := []struct {
		result uint8
		want   bool
	}{
		{ps2.ResponsePass, true},
		{0xFC, false},
		{0xFD, false},
		{0x00, false},
	}
	for _, tt := range tests {
		// The result byte follows the acknowledgement.
		f := &fake8042{replies: []uint8{ps2.ResponseACK}}
		kbd := ps2.NewKeyboard(ps2.NewController(&followUp{fake8042: f, extra: tt.result}, f))
		if got := kbd.SelfTest(); got != tt.want {
			t.Errorf("self-test result 0x%02x: pass = %v, want %v", tt.result, got, tt.want)
		}
	}
}

// followUp queues one extra byte after the first keyboard reply.
type followUp struct {
	*fake8042
	extra uint8
	done  bool
}

func (f *followUp) WritePort(port uint16, v uint8) {
	f.fake8042.WritePort(port, v)
	if port == ps2.PortData && !f.done {
		f.done = true
		f.mu.Lock()
		f.out = append(f.out, f.extra)
		f.mu.Unlock()
	}
}

func TestKeyboardSelfTestNotAcknowledged(t *testing.T) {
	f := &fake8042{replies: []uint8{0xFC}}
	if ps2.NewKeyboard(ps2.NewController(f, f)).SelfTest() {
		t.Errorf("self-test passed without an acknowledgement")
	}
}

func TestKeyboardEcho(t *testing.T) {
	f := &fake8042{replies: []uint8{ps2.ResponseEcho}}
	if !ps2.NewKeyboard(ps2.NewController(f, f)).Echo() {
		t.Errorf("Echo() = false")
	}
}

func TestKeyboardSetLEDsMasksBits(t *testing.T) {
	f := &fake8042{replies: []uint8{ps2.ResponseACK, ps2.ResponseACK}}
	out := ps2.NewKeyboard(ps2.NewController(f, f)).SetLEDs(0xFF)
	if !out.OK() {
		t.Fatalf("SetLEDs outcome = %+v", out)
	}
	if got := f.log[len(f.log)-1]; got != "data 07 masked=false" {
		t.Errorf("LED byte = %q", got)
	}
}

func TestKeyboardScancodeSet(t *testing.T) {
	f := &fake8042{replies: []uint8{ps2.ResponseACK, ps2.ResponseACK}}
	kbd := ps2.NewKeyboard(ps2.NewController(f, f))
	if _, err := kbd.SetScancodeSet(4); err == nil {
		t.Errorf("SetScancodeSet(4) succeeded")
	}
	out, err := kbd.SetScancodeSet(2)
	if err != nil || !out.OK() {
		t.Errorf("SetScancodeSet(2) = %+v, %v", out, err)
	}
}

func TestControllerTests(t *testing.T) {
	f := &fake8042{}
	ctl := ps2.NewController(f, f)
	if !ctl.SelfTest() {
		t.Errorf("controller self-test failed")
	}
	if !ctl.TestPort1() {
		t.Errorf("port 1 test failed")
	}
	f.out = []uint8{1, 2, 3}
	ctl.Flush()
	if len(f.out) != 0 {
		t.Errorf("Flush left %d bytes", len(f.out))
	}
}
