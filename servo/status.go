package servo

// Status is a point-in-time snapshot of one unit, sent to the
// supervisor. Delivery is fire-and-forget: the unit never waits for an
// acknowledgment and drops nothing on the floor itself; throttling
// happens before emission.
type Status struct {
	Pin        int
	Position   int
	Assigned   bool
	Moving     bool
	Attached   bool
	AutoDetach bool // countdown configured for this unit
	Verbose    bool
}

// StatusSink receives throttled status events.
type StatusSink interface {
	EmitStatus(Status)
}

// StatusFunc adapts a plain function to the StatusSink interface.
type StatusFunc func(Status)

// EmitStatus calls f(st).
func (f StatusFunc) EmitStatus(st Status) { f(st) }

type nopSink struct{}

func (nopSink) EmitStatus(Status) {}
