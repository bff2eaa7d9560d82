package reactor

import (
	"time"
)

// Backend is the pluggable readiness-multiplexing vtable, grounded on the
// original library's struct eventop. Init is given the concrete *Reactor
// (not a narrower interface) so Dispatch can walk the registered-event list
// directly and call Active on the reactor without an indirection layer —
// both live in this package, and a Backend implementation is only ever
// constructed for a specific Reactor.
//
// Exactly one Backend drives a given Reactor for its entire lifetime; there
// is no support for switching backends after New returns.
type Backend interface {
	// Name identifies the backend, for logging and diagnostics.
	Name() string

	// Init binds the backend to its owning Reactor. Called once from New.
	Init(r *Reactor) error

	// Add registers interest in ev's fd. Called whenever a fd event is
	// added to the reactor, or when its interest set changes.
	Add(ev *Event) error

	// Del unregisters interest in ev's fd. Called when a fd event is
	// removed from the reactor.
	Del(ev *Event) error

	// Recalc is called after the registered-event set changes, so the
	// backend can rebuild any internal fd-indexed structures (e.g. the
	// pollfd array, or the highest-fd watermark for select's fd_set
	// sizing). maxFD is the highest fd currently registered, or -1 if
	// none.
	Recalc(maxFD int) error

	// Dispatch blocks until at least one registered fd is ready, timeout
	// elapses, or a signal interrupts the wait, then moves every ready
	// event onto the reactor's active queue via Reactor.Active. A nil
	// timeout means block indefinitely.
	Dispatch(timeout *time.Duration) error
}

// registeredFDs returns the Registered, non-signal events currently known to
// r, for a backend's Recalc/Dispatch to iterate. The returned slice is
// freshly allocated from r's intrusive list on every call and reflects the
// list only as of that call.
func registeredFDs(r *Reactor) []*Event {
	evs := make([]*Event, 0, r.registered.Len())
	for e := r.registered.Front(); e != nil; e = e.Next() {
		ev := e.Value.(*Event)
		if ev.interest&Signal != 0 {
			continue
		}
		evs = append(evs, ev)
	}
	return evs
}

// maxRegisteredFD returns the highest fd among r's registered, non-signal
// events, or -1 if there are none.
func maxRegisteredFD(r *Reactor) int {
	max := -1
	for e := r.registered.Front(); e != nil; e = e.Next() {
		ev := e.Value.(*Event)
		if ev.interest&Signal != 0 {
			continue
		}
		if ev.fd > max {
			max = ev.fd
		}
	}
	return max
}
