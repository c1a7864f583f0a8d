package servo

import "time"

// Clock abstracts the time source of the tick state machine so tests can
// drive the cadence deterministically. Comparisons use the monotonic
// reading carried by time.Time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
