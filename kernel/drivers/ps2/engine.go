// Package ps2 drives the 8042 PS/2 controller and the keyboard behind its
// first port.
package ps2

import (
	"errors"
	"fmt"
)

// MaxAttempts is how many times a keyboard command byte is sent before the
// engine gives up on repeated resend requests.
const MaxAttempts = 3

// Keyboard response bytes.
const (
	ResponseACK    uint8 = 0xFA
	ResponseResend uint8 = 0xFE
	ResponsePass   uint8 = 0xAA // self-test passed
	ResponseEcho   uint8 = 0xEE
)

// ErrRetriesExhausted is returned by Outcome.Err when every attempt was
// answered with a resend request.
var ErrRetriesExhausted = errors.New("ps2: keyboard kept requesting resend")

// UnexpectedResponseError is returned by Outcome.Err for a response byte
// that is neither ACK nor RESEND.
type UnexpectedResponseError struct {
	Command  uint8
	Response uint8
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("ps2: command 0x%02x got response 0x%02x", e.Command, e.Response)
}

// Channel carries bytes to and from the device on the first PS/2 port.
type Channel interface {
	WriteData(v uint8)
	ReadData() uint8
}

// Status is how a command session ended.
type Status int

const (
	StatusOK Status = iota
	StatusUnexpected
	StatusRetriesExhausted
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnexpected:
		return "unexpected response"
	case StatusRetriesExhausted:
		return "retries exhausted"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is the result of SendCommand. Protocol failures are values, not
// errors; the caller decides what to do with them.
type Outcome struct {
	Status Status
	// Response is the offending byte when Status is StatusUnexpected.
	Response uint8
	// Transmissions counts how many times the command byte was sent.
	Transmissions int

	command uint8
}

// OK reports whether every byte was acknowledged.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// Err converts the outcome into an error, nil on success.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusOK:
		return nil
	case StatusRetriesExhausted:
		return fmt.Errorf("command 0x%02x: %w", o.command, ErrRetriesExhausted)
	default:
		return &UnexpectedResponseError{Command: o.command, Response: o.Response}
	}
}

type state int

const (
	stateSendCommand state = iota
	stateSendData
	stateAwaitResponse
	stateDone
	stateFailed
)

// session is the transient state of one SendCommand call.
type session struct {
	cmd      uint8
	data     []uint8
	cursor   int
	attempts int
	state    state
	out      Outcome
}

// Engine runs the keyboard command/acknowledge/resend protocol over a
// Channel.
type Engine struct {
	ch Channel
}

// NewEngine returns an engine talking over ch.
func NewEngine(ch Channel) *Engine {
	return &Engine{ch: ch}
}

// SendCommand sends cmd and then each data byte, one per acknowledgement.
// A resend request restarts the session from the command byte, up to
// MaxAttempts transmissions of it. Any other response ends the session at
// once with StatusUnexpected.
func (e *Engine) SendCommand(cmd uint8, data ...uint8) Outcome {
	s := &session{cmd: cmd, data: data, state: stateSendCommand}
	s.out.command = cmd
	for s.state != stateDone && s.state != stateFailed {
		e.step(s)
	}
	return s.out
}

func (e *Engine) step(s *session) {
	switch s.state {
	case stateSendCommand:
		if s.attempts == MaxAttempts {
			s.out.Status = StatusRetriesExhausted
			s.state = stateFailed
			return
		}
		s.attempts++
		s.cursor = 0
		e.ch.WriteData(s.cmd)
		s.out.Transmissions++
		s.state = stateAwaitResponse

	case stateSendData:
		e.ch.WriteData(s.data[s.cursor])
		s.cursor++
		s.state = stateAwaitResponse

	case stateAwaitResponse:
		switch res := e.ch.ReadData(); res {
		case ResponseACK:
			if s.cursor < len(s.data) {
				s.state = stateSendData
			} else {
				s.out.Status = StatusOK
				s.state = stateDone
			}
		case ResponseResend:
			s.state = stateSendCommand
		default:
			s.out.Status = StatusUnexpected
			s.out.Response = res
			s.state = stateFailed
		}
	}
}
