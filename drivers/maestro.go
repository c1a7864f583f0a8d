//go:build !baremetal

package drivers

import (
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Maestro protocol bytes and limits. See the Pololu Maestro manual.
const (
	cmdSetTarget = 0x84

	maestroMaxChannel = 23

	// Pulse width range in quarter-microseconds, the Maestro native
	// unit. 544-2400us is the Arduino-compatible hobby servo range.
	minTargetQuarterUs = 4 * 544
	maxTargetQuarterUs = 4 * 2400
)

// Maestro drives one channel of a Pololu Maestro servo controller over
// its compact serial protocol.
//
// The Maestro has no attach/detach primitive; a target of zero stops
// the pulse train on the channel, which releases the servo the same way
// detaching does. Positions written while detached are latched and
// applied on the next Attach, which matches the power-up sequence of
// restoring a pose before enabling the signal.
type Maestro struct {
	port    serial.Port
	w       io.Writer
	channel uint8

	attached bool
	last     int // last angle written, re-applied on attach
}

// MaestroConfig holds configuration for opening a Maestro channel.
type MaestroConfig struct {
	// Port is the serial device of the Maestro command interface,
	// e.g. "/dev/ttyACM0".
	Port string

	// BaudRate for the command interface. Default is 9600.
	BaudRate int

	// Channel the servo is wired to (0-23).
	Channel int
}

// OpenMaestro opens the serial port and returns a detached driver.
func OpenMaestro(cfg MaestroConfig) (*Maestro, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.Channel < 0 || cfg.Channel > maestroMaxChannel {
		return nil, fmt.Errorf("invalid channel %d (valid range: 0-%d)", cfg.Channel, maestroMaxChannel)
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", cfg.Port, err)
	}

	return &Maestro{
		port:    port,
		w:       port,
		channel: uint8(cfg.Channel),
		last:    90,
	}, nil
}

// Attach enables the pulse train at the last written position.
func (m *Maestro) Attach() error {
	if m.attached {
		return nil
	}
	m.attached = true
	return m.WritePosition(m.last)
}

// Detach stops the pulse train; the servo goes limp.
func (m *Maestro) Detach() error {
	if err := m.setTarget(0); err != nil {
		return err
	}
	m.attached = false
	return nil
}

// Attached reports whether the channel is currently pulsing.
func (m *Maestro) Attached() bool {
	return m.attached
}

// WritePosition maps degrees onto the 544-2400us pulse range and sends
// a Set Target command. While detached the position is only latched.
func (m *Maestro) WritePosition(angle int) error {
	if angle < 0 {
		angle = 0
	} else if angle > 180 {
		angle = 180
	}
	m.last = angle
	if !m.attached {
		return nil
	}
	target := minTargetQuarterUs + angle*(maxTargetQuarterUs-minTargetQuarterUs)/180
	return m.setTarget(target)
}

func (m *Maestro) setTarget(target int) error {
	cmd := []byte{
		cmdSetTarget,
		m.channel,
		byte(target & 0x7F),
		byte((target >> 7) & 0x7F),
	}
	n, err := m.w.Write(cmd)
	if err != nil {
		return fmt.Errorf("maestro write: %w", err)
	}
	if n != len(cmd) {
		return fmt.Errorf("incomplete write: %d of %d bytes", n, len(cmd))
	}
	return nil
}

// Close releases the serial port.
func (m *Maestro) Close() error {
	if m.port == nil {
		return nil
	}
	return m.port.Close()
}
