package servo

import (
	"context"
	"math"

	log "github.com/sirupsen/logrus"
)

// TickResult reports what a single Tick invocation did.
type TickResult int

const (
	// TickSkipped means the tick was not due yet, or the unit is
	// unassigned or detached.
	TickSkipped TickResult = iota
	// TickIdle means an effective tick ran with nothing left to do.
	TickIdle
	// TickStepped means one interpolation step was written to the driver.
	TickStepped
	// TickArrived means the target was reached on this tick.
	TickArrived
	// TickDetachReady means the post-arrival dwell has elapsed; the
	// supervisor may now power the unit down.
	TickDetachReady
)

func (r TickResult) String() string {
	switch r {
	case TickSkipped:
		return "skipped"
	case TickIdle:
		return "idle"
	case TickStepped:
		return "stepped"
	case TickArrived:
		return "arrived"
	case TickDetachReady:
		return "detach-ready"
	default:
		return "unknown"
	}
}

// Tick advances the motion state machine by at most one effective tick.
// Call it in a tight loop at or above the nominal cadence; invocations
// arriving early are rejected cheaply after a sub-tick sleep, so the
// cadence is self-paced rather than timer-driven. Jitter is bounded by
// the polling interval.
//
// Tick must not be called concurrently with the other operations.
func (s *Servo) Tick() TickResult {
	if !s.assigned {
		return TickSkipped
	}
	if !s.driver.Attached() {
		return TickSkipped
	}

	now := s.clock.Now()
	if now.Sub(s.lastTick) < tickPeriod {
		s.clock.Sleep(idleSleep)
		return TickSkipped
	}
	s.lastTick = now

	// Coarse status traffic is decoupled from the fine interpolation
	// steps: emit only on position change and not faster than the
	// minimum status interval.
	if int(s.nextPos) != s.loggedLastPos && now.Sub(s.lastStatus) > statusInterval {
		s.emitStatus(int(s.nextPos))
		s.loggedLastPos = int(s.nextPos)
		s.lastStatus = now
		if s.verbose {
			s.logger.WithField("position", s.nextPos).Debug("m99 position update")
		}
	}

	// Arrival: the plan ran out of steps, settle at the assumed
	// position and re-stamp arrivedAt with the actual arrival instant.
	if s.moving && s.numIncrements <= 0 {
		s.moving = false
		s.arrivedAt = now
		s.lastPosition = int(math.Round(s.nextPos))
		if s.verbose {
			s.logger.WithField("position", s.lastPosition).Info("target reached")
		}
		s.emitStatus(s.lastPosition)
		return TickArrived
	}

	// Auto-detach countdown. Holds the state machine until the arrival
	// deadline has passed, then waits out the post-arrival dwell before
	// signalling readiness. The unit does not power itself down: the
	// supervisor consumes TickDetachReady (or the status event) and
	// calls Detach, possibly for a whole power group at once.
	if s.inMoveRequest && s.autoDetach > 0 {
		if s.arrivedAt.After(now) {
			return TickIdle
		}
		if !s.moving && now.Sub(s.arrivedAt) > s.autoDetach {
			s.inMoveRequest = false
			if s.verbose {
				s.logger.WithFields(log.Fields{
					"autoDetach": s.autoDetach,
					"dwell":      now.Sub(s.arrivedAt),
				}).Debug("move request cleared, unit may power down")
			}
			s.emitStatus(int(s.nextPos))
			return TickDetachReady
		}
	}

	// Interpolation step: advance the in-flight position and hand it to
	// the driver. The previous interpolated value becomes the new
	// assumed position.
	if s.numIncrements > 0 {
		s.lastPosition = int(math.Round(s.nextPos))
		s.nextPos += s.increment
		s.numIncrements--
		if err := s.writePosition(int(s.nextPos)); err != nil {
			// Open-loop best effort: log and keep the plan running.
			s.logger.WithError(err).WithField("pin", s.pin).Warn("driver write failed")
		}
		return TickStepped
	}

	return TickIdle
}

// Run drives the tick loop until ctx is cancelled. It is a convenience
// for embedders that dedicate a goroutine to one unit; every other
// operation on the Servo must then be called from that same goroutine.
func (s *Servo) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if s.Tick() == TickSkipped && !s.driver.Attached() {
			// Nothing can happen until someone attaches the unit.
			s.clock.Sleep(tickPeriod)
		}
	}
}
