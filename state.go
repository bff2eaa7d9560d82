package reactor

// ReactorState represents the current state of a [Reactor].
//
// State Machine:
//
//	StateIdle → StateRunning       [Loop()]
//	StateRunning → StateDispatching [entering backend.Dispatch]
//	StateDispatching → StateRunning [backend.Dispatch returns]
//	StateRunning → StateTerminated  [Loop returns: LoopExit, LoopOnce, no work left, or backend error]
//	StateTerminated → StateRunning  [Loop() called again]
//
// Unlike a concurrent loop, no CAS is required for these transitions: the
// reactor is single-threaded and cooperative, so a plain field assignment
// from the dispatch loop itself is always race-free.
type ReactorState uint8

const (
	// StateIdle indicates the reactor has been created but Loop has not
	// been called yet.
	StateIdle ReactorState = iota
	// StateRunning indicates the reactor is between ticks: running timers,
	// draining the active queue, or about to poll.
	StateRunning
	// StateDispatching indicates the reactor is blocked inside the
	// backend's Dispatch call, waiting for fd readiness, a timer deadline,
	// or a signal.
	StateDispatching
	// StateTerminated indicates Loop has returned: after observing
	// LoopExit, after a LoopOnce iteration, on running out of events, or on
	// a backend error.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s ReactorState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateDispatching:
		return "Dispatching"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
