package servo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juergmaier/skeletoncontrol/drivers"
)

func TestTickSelfPacing(t *testing.T) {
	s, drv, clk, _ := newTestServo(t, defaultConfig())
	require.NoError(t, s.MoveTo(120, 200*time.Millisecond))

	clk.advance(tickPeriod)
	require.Equal(t, TickStepped, s.Tick())

	// Polled again right away: the tick is not due, only the sub-tick
	// relief sleep runs.
	before := clk.now
	require.Equal(t, TickSkipped, s.Tick())
	require.Equal(t, TickSkipped, s.Tick())
	require.Len(t, drv.Writes, 1)
	require.True(t, clk.now.After(before), "idle polling must still sleep briefly")

	// Polled late: a single effective tick runs, no catch-up burst.
	clk.advance(3 * tickPeriod)
	require.Equal(t, TickStepped, s.Tick())
	require.Equal(t, TickSkipped, s.Tick())
	require.Len(t, drv.Writes, 2)
}

func TestTickGates(t *testing.T) {
	drv := &drivers.MockDriver{}
	clk := newFakeClock()
	s := New(drv, Options{Clock: clk})

	// Unassigned units never tick.
	clk.advance(tickPeriod)
	require.Equal(t, TickSkipped, s.Tick())

	require.NoError(t, s.Configure(defaultConfig()))

	// Configured but detached: still gated.
	clk.advance(tickPeriod)
	require.Equal(t, TickSkipped, s.Tick())

	require.NoError(t, s.Attach())
	clk.advance(tickPeriod)
	require.Equal(t, TickIdle, s.Tick())
}

func TestStatusThrottle(t *testing.T) {
	s, _, clk, rec := newTestServo(t, defaultConfig())

	// 50 steps of 1.8 degrees; position changes on every tick but
	// status traffic must stay coarse.
	require.NoError(t, s.MoveTo(180, time.Second))

	var arrived int
	for i := 0; i < 51; i++ {
		if tick(s, clk) == TickArrived {
			arrived++
		}
	}
	require.Equal(t, 1, arrived)

	require.NotEmpty(t, rec.events)
	final := rec.events[len(rec.events)-1]
	require.False(t, final.Moving)
	require.Equal(t, 180, final.Position)

	// All emissions before the arrival one honor the minimum interval.
	for i := 1; i < len(rec.times)-1; i++ {
		gap := rec.times[i].Sub(rec.times[i-1])
		require.Greater(t, gap, statusInterval, "emission %d too close to its predecessor", i)
	}

	// No duplicate positions while moving.
	seen := map[int]bool{}
	for _, ev := range rec.events[:len(rec.events)-1] {
		require.True(t, ev.Moving)
		require.False(t, seen[ev.Position], "position %d reported twice", ev.Position)
		seen[ev.Position] = true
	}
}

func TestArrivalEmitsStatusOnce(t *testing.T) {
	s, _, clk, rec := newTestServo(t, defaultConfig())

	require.NoError(t, s.MoveTo(100, 100*time.Millisecond))
	for i := 0; i < 5; i++ {
		require.Equal(t, TickStepped, tick(s, clk))
	}
	rec.events = nil

	require.Equal(t, TickArrived, tick(s, clk))
	require.Len(t, rec.events, 1)
	require.Equal(t, 100, rec.events[0].Position)
	require.False(t, rec.events[0].Moving)
}

func TestAutoDetachDwell(t *testing.T) {
	cfg := defaultConfig()
	cfg.AutoDetach = 500 * time.Millisecond
	s, drv, clk, _ := newTestServo(t, cfg)

	require.NoError(t, s.MoveTo(100, 100*time.Millisecond))

	// While the arrival deadline lies ahead the countdown logic holds
	// the state machine; interpolation starts once it has passed.
	for i := 0; i < 4; i++ {
		require.Equal(t, TickIdle, tick(s, clk), "tick %d", i+1)
	}
	require.Empty(t, drv.Writes)

	for i := 0; i < 5; i++ {
		require.Equal(t, TickStepped, tick(s, clk))
	}
	require.Equal(t, TickArrived, tick(s, clk))
	require.Equal(t, 100, s.Position())
	require.True(t, s.InMoveRequest())

	// Dwell: the request stays pending while (now - arrival) <= 500ms.
	for i := 0; i < 25; i++ {
		tick(s, clk)
		require.True(t, s.InMoveRequest(), "dwell tick %d", i+1)
	}

	// First tick past the dwell signals readiness, exactly once.
	require.Equal(t, TickDetachReady, tick(s, clk))
	require.False(t, s.InMoveRequest())
	require.Equal(t, TickIdle, tick(s, clk))
	require.False(t, s.InMoveRequest())

	// The unit itself stays attached: powering down is the
	// supervisor's call.
	require.True(t, s.Attached())
}

func TestAutoDetachDisabled(t *testing.T) {
	s, _, clk, _ := newTestServo(t, defaultConfig())

	require.NoError(t, s.MoveTo(100, 100*time.Millisecond))
	for s.Moving() {
		tick(s, clk)
	}

	// Without a countdown the request flag is never cleared by ticking.
	for i := 0; i < 50; i++ {
		require.Equal(t, TickIdle, tick(s, clk))
	}
	require.True(t, s.InMoveRequest())
}

func TestBackToBackMovesKeepDeadlineFresh(t *testing.T) {
	cfg := defaultConfig()
	cfg.AutoDetach = 100 * time.Millisecond
	s, _, clk, _ := newTestServo(t, cfg)

	require.NoError(t, s.MoveTo(100, 100*time.Millisecond))
	clk.advance(40 * time.Millisecond)

	// A second request, even to the position the unit already holds,
	// pushes the deadline out so a power-group consumer does not see a
	// stale one mid-sequence.
	require.NoError(t, s.MoveTo(90, 300*time.Millisecond))
	require.True(t, s.arrivedAt.Equal(clk.now.Add(300*time.Millisecond)))
	require.True(t, s.InMoveRequest())
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _, _ := newTestServo(t, defaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
