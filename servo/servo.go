// Package servo implements timed motion control for hobby servos.
//
// A Servo accepts a target angle plus a transit duration and drives the
// underlying actuator toward it in small interpolation steps at a fixed
// cadence, instead of letting the horn snap to the target. Motion is
// open-loop: the actuator gives no position feedback, so the reached
// position is always the assumed one. A configurable auto-detach dwell
// after arrival lets a supervisor cut power to reduce jitter and heat.
//
// The state machine is single-threaded and polling-driven: the embedder
// calls Tick in a tight loop (or hands a goroutine to Run) and the unit
// self-paces to its nominal cadence. None of the operations are safe to
// call concurrently with Tick.
package servo

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// Timing constants of the polling state machine.
const (
	tickPeriod     = 20 * time.Millisecond // interpolation cadence (50 updates/s)
	statusInterval = 90 * time.Millisecond // minimum gap between status emissions
	idleSleep      = 10 * time.Microsecond // busy-poll relief when a tick is not due
)

// Driver is the narrow capability a Servo needs from the actuator
// hardware. The angle-to-pulse conversion and signal timing are the
// driver's responsibility; the state machine treats it as an idealized
// immediate-write actuator. Implementations live in the drivers package.
type Driver interface {
	Attach() error
	Detach() error
	Attached() bool
	WritePosition(angle int) error
}

// Servo is a single actuator unit with timed motion control.
// A freshly constructed Servo is inert; Configure makes it usable.
type Servo struct {
	driver Driver
	clock  Clock
	sink   StatusSink
	logger log.FieldLogger

	// identity and calibration, set once by Configure
	name         string
	pin          int
	controllerID int
	min, max     int
	inverted     bool
	autoDetach   time.Duration

	assigned bool
	verbose  bool

	// motion state
	lastPosition  int     // last confirmed/assumed position in degrees
	nextPos       float64 // in-flight interpolated position
	increment     float64 // per-step delta
	numIncrements int     // remaining steps of the current plan
	moving        bool
	inMoveRequest bool // auto-detach countdown pending, independent of moving

	// timing state
	arrivedAt     time.Time // arrival deadline, re-stamped with the actual arrival instant
	lastTick      time.Time
	lastStatus    time.Time
	loggedLastPos int // dedup key for status emissions
}

// Config carries the one-time setup for a servo unit.
type Config struct {
	Name         string
	Pin          int
	ControllerID int // owning controller, used in diagnostics only

	// Legal angle range in degrees. Targets outside it are clamped.
	Min, Max int

	// Inverted mirrors the written angle (180 - position). Position
	// bookkeeping is always stored non-inverted.
	Inverted bool

	// AutoDetach is the dwell after arrival before the unit signals
	// readiness for power-down. Zero disables the countdown.
	AutoDetach time.Duration

	// LastPosition is the externally supplied position assumed from
	// before the power cycle.
	LastPosition int

	// Verbose enables the per-unit diagnostic traces.
	Verbose bool
}

// Validate checks the configuration ranges.
func (c *Config) Validate() error {
	if c.Pin < 0 {
		return fmt.Errorf("%w: negative pin %d", ErrInvalidConfig, c.Pin)
	}
	if c.Min >= c.Max {
		return fmt.Errorf("%w: min (%d) must be less than max (%d)", ErrInvalidConfig, c.Min, c.Max)
	}
	if c.Min < 0 || c.Max > 180 {
		return fmt.Errorf("%w: range must be within 0-180, got min=%d max=%d", ErrInvalidConfig, c.Min, c.Max)
	}
	if c.AutoDetach < 0 {
		return fmt.Errorf("%w: negative auto-detach %v", ErrInvalidConfig, c.AutoDetach)
	}
	return nil
}

// Options holds the injectable collaborators of a Servo.
// Zero fields fall back to sensible defaults.
type Options struct {
	Clock  Clock           // defaults to the system clock
	Sink   StatusSink      // defaults to a no-op sink
	Logger log.FieldLogger // defaults to the logrus standard logger
}

// New returns an inert Servo bound to driver. The unit rejects motion
// requests until Configure is called.
func New(driver Driver, opts Options) *Servo {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Servo{
		driver: driver,
		clock:  opts.Clock,
		sink:   opts.Sink,
		logger: opts.Logger,
	}
}

// Configure sets identity, calibration and the initial last known
// position, clears any motion state and forces the driver detached.
func (s *Servo) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.name = cfg.Name
	s.pin = cfg.Pin
	s.controllerID = cfg.ControllerID
	s.min = cfg.Min
	s.max = cfg.Max
	s.inverted = cfg.Inverted
	s.autoDetach = cfg.AutoDetach
	s.verbose = cfg.Verbose

	s.lastPosition = cfg.LastPosition
	s.nextPos = float64(cfg.LastPosition)
	s.loggedLastPos = cfg.LastPosition
	s.increment = 0
	s.numIncrements = 0
	s.moving = false
	s.inMoveRequest = false

	s.logger = s.logger.WithField("servo", s.name)
	s.assigned = true

	if err := s.driver.Detach(); err != nil {
		return fmt.Errorf("detach during configure: %w", err)
	}
	return nil
}

// PowerUp restores the last known position and attaches the driver. The
// position is written in one shot so the horn does not sweep through
// intermediate angles after a power cycle.
func (s *Servo) PowerUp() error {
	if !s.assigned {
		return ErrNotConfigured
	}
	if err := s.writePosition(s.lastPosition); err != nil {
		return fmt.Errorf("restore position: %w", err)
	}
	if s.verbose {
		s.logger.WithFields(log.Fields{
			"pin":          s.pin,
			"lastPosition": s.lastPosition,
			"inverted":     s.inverted,
		}).Debug("m31 powerUp")
	}
	return s.driver.Attach()
}

// MoveTo plans a linear move to target degrees spread over duration. The
// plan is consumed incrementally by Tick. Durations shorter than one
// tick period are treated as a single-step move.
func (s *Servo) MoveTo(target int, duration time.Duration) error {
	if !s.assigned {
		s.logger.Warn("m01 no action, servo not assigned yet")
		return ErrNotConfigured
	}

	if !s.driver.Attached() {
		// Units may auto-detach between moves; recover, but flag the
		// ordering problem upstream.
		s.logger.WithField("pin", s.pin).Warn("m06 sequence error, servo not attached")
		if err := s.driver.Attach(); err != nil {
			return fmt.Errorf("reattach: %w", err)
		}
	}

	target = s.clamp(target)
	now := s.clock.Now()

	// Always stamp the deadline, even for a no-op move: a power-group
	// consumer reads it while back-to-back requests are in flight.
	s.arrivedAt = now.Add(duration)
	s.inMoveRequest = true

	if target == s.lastPosition {
		// Make sure status updates keep reporting the held position.
		s.nextPos = float64(s.lastPosition)
		if s.verbose {
			s.logger.WithField("target", target).Debug("move to current position, request ignored")
		}
		return nil
	}

	steps := int(duration / tickPeriod)
	if steps < 1 {
		steps = 1 // sub-tick duration degenerates to a single step
	}
	s.numIncrements = steps
	s.increment = float64(target-s.lastPosition) / float64(steps)
	s.nextPos = float64(s.lastPosition)
	s.moving = true
	s.lastStatus = now

	if s.verbose {
		s.logger.WithFields(log.Fields{
			"controller": s.controllerID,
			"pin":        s.pin,
			"target":     target,
			"duration":   duration,
			"start":      s.lastPosition,
			"steps":      steps,
			"increment":  s.increment,
		}).Debug("m10 moveTo accepted")
	}
	return nil
}

// Stop halts an in-flight move where it stands. The held position
// freezes at the current interpolated value; there is no rollback and
// the driver stays attached. The moving flag settles on the next tick.
func (s *Servo) Stop() {
	now := s.clock.Now()
	s.numIncrements = 0
	s.arrivedAt = now
	s.lastPosition = int(math.Round(s.nextPos))
	s.logger.WithField("lastPosition", s.lastPosition).Info("m20 servo stop received")
	s.emitStatus(s.lastPosition)
	s.loggedLastPos = s.lastPosition
	s.lastStatus = now
}

// SetLastPosition overwrites the stored last known position without
// moving anything. Used for externally driven recalibration.
func (s *Servo) SetLastPosition(position int) {
	s.lastPosition = position
	if !s.moving {
		s.nextPos = float64(position)
	}
}

// SetVerbose toggles the per-unit diagnostic traces at runtime.
func (s *Servo) SetVerbose(verbose bool) {
	s.verbose = verbose
}

// Attach powers the driver.
func (s *Servo) Attach() error {
	return s.driver.Attach()
}

// Detach releases the driver unless it is already detached. Shutdown
// paths pass force to detach unconditionally.
func (s *Servo) Detach(force bool) error {
	if !s.driver.Attached() && !force {
		return nil
	}
	if err := s.driver.Detach(); err != nil {
		return err
	}
	if s.verbose {
		s.logger.WithField("pin", s.pin).Debug("m14 servo detached")
	}
	return nil
}

// Attached reports whether the driver currently holds the servo powered.
func (s *Servo) Attached() bool {
	return s.driver.Attached()
}

// Assigned reports whether the unit has been configured.
func (s *Servo) Assigned() bool {
	return s.assigned
}

// Name returns the logical unit name.
func (s *Servo) Name() string {
	return s.name
}

// Position returns the last confirmed or assumed position in degrees.
func (s *Servo) Position() int {
	return s.lastPosition
}

// Moving reports whether an interpolation plan is in progress.
func (s *Servo) Moving() bool {
	return s.moving
}

// InMoveRequest reports whether an auto-detach countdown is still
// pending for the most recent move request.
func (s *Servo) InMoveRequest() bool {
	return s.inMoveRequest
}

// clamp keeps a requested target inside the calibrated range. Idempotent;
// an adjustment is a diagnostic, not an error.
func (s *Servo) clamp(target int) int {
	if target < s.min {
		s.logger.WithFields(log.Fields{
			"requested": target,
			"min":       s.min,
		}).Warn("m02 position adjusted to range minimum")
		return s.min
	}
	if target > s.max {
		s.logger.WithFields(log.Fields{
			"requested": target,
			"max":       s.max,
		}).Warn("m02 position adjusted to range maximum")
		return s.max
	}
	return target
}

// writePosition applies the orientation rule at the last moment; all
// other bookkeeping stays non-inverted.
func (s *Servo) writePosition(position int) error {
	if s.inverted {
		position = 180 - position
	}
	return s.driver.WritePosition(position)
}

func (s *Servo) emitStatus(position int) {
	s.sink.EmitStatus(Status{
		Pin:        s.pin,
		Position:   position,
		Assigned:   s.assigned,
		Moving:     s.moving,
		Attached:   s.driver.Attached(),
		AutoDetach: s.autoDetach > 0,
		Verbose:    s.verbose,
	})
}
