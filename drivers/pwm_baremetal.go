//go:build baremetal

package drivers

import (
	"machine"

	tinyservo "tinygo.org/x/drivers/servo"
)

// PWM drives a hobby servo signal pin directly from a TinyGo PWM
// peripheral. Detaching stops the pulse train, which lets most hobby
// servos go limp; positions written while detached are latched and
// applied on the next Attach.
type PWM struct {
	servo tinyservo.Servo

	attached     bool
	last         int // last angle written, re-applied on attach
	minUs, maxUs int
}

// PWMConfig holds configuration for a PWM-driven servo pin.
type PWMConfig struct {
	// PWM is the peripheral the pin belongs to, e.g. machine.TCC0 or
	// machine.PWM0 depending on the target.
	PWM tinyservo.PWM

	// Pin is the servo signal pin.
	Pin machine.Pin

	// Pulse range in microseconds. Defaults to 544-2400, the Arduino
	// convention for hobby servos.
	MinMicros, MaxMicros int
}

// NewPWM configures the peripheral and returns a detached driver.
func NewPWM(cfg PWMConfig) (*PWM, error) {
	if cfg.MinMicros == 0 {
		cfg.MinMicros = 544
	}
	if cfg.MaxMicros == 0 {
		cfg.MaxMicros = 2400
	}

	s, err := tinyservo.New(cfg.PWM, cfg.Pin)
	if err != nil {
		return nil, err
	}

	return &PWM{
		servo: s,
		last:  90,
		minUs: cfg.MinMicros,
		maxUs: cfg.MaxMicros,
	}, nil
}

// Attach enables the pulse train at the last written position.
func (p *PWM) Attach() error {
	p.attached = true
	return p.WritePosition(p.last)
}

// Detach stops the pulse train.
func (p *PWM) Detach() error {
	p.servo.SetMicroseconds(0)
	p.attached = false
	return nil
}

// Attached reports whether the pin is currently pulsing.
func (p *PWM) Attached() bool {
	return p.attached
}

// WritePosition maps degrees onto the configured pulse range. While
// detached the position is only latched.
func (p *PWM) WritePosition(angle int) error {
	if angle < 0 {
		angle = 0
	} else if angle > 180 {
		angle = 180
	}
	p.last = angle
	if !p.attached {
		return nil
	}
	us := p.minUs + angle*(p.maxUs-p.minUs)/180
	p.servo.SetMicroseconds(int16(us))
	return nil
}
