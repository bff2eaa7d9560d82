package reactor

import (
	"container/list"
	"syscall"
	"time"
)

// Interest is a bitset over the conditions an [Event] can be registered for,
// plus the TIMEOUT outcome flag and the PERSIST re-arm attribute. READ,
// WRITE, and SIGNAL are registration intents; TIMEOUT is delivered only in a
// callback's result mask, never set by the caller.
type Interest uint16

const (
	// Read registers interest in the descriptor becoming readable.
	Read Interest = 1 << iota
	// Write registers interest in the descriptor becoming writable.
	Write
	// Signal marks the event as a signal registration; fd is interpreted
	// as a signal number.
	Signal
	// Timeout is set in a callback's result mask when the firing was
	// caused by the event's deadline elapsing.
	Timeout
	// Persist means the event remains registered after firing instead of
	// being removed automatically.
	Persist
)

// Membership is a bitset of the queues an [Event] currently belongs to.
// Membership bits exactly reflect queue residency: no event is in a queue
// whose bit is clear, and vice versa.
type Membership uint16

const (
	// Registered means the event is on the reactor's fd-interest list.
	Registered Membership = 1 << iota
	// MembershipActive means the event is on the active queue awaiting
	// callback invocation.
	MembershipActive
	// SignalList means the event is on its signal's delivery list.
	SignalList
	// TimeoutSet means the event is in the timer ordered set.
	TimeoutSet
	// Initialized means the event has been set up via NewEvent (or one of
	// its convenience constructors) at least once.
	Initialized
	// Internal marks an event used by the reactor's own bookkeeping,
	// excluded from application-facing enumeration.
	Internal
)

// Callback is invoked when an event fires. result is the subset of the
// event's interest (plus Timeout) that caused this firing.
type Callback func(r *Reactor, ev *Event, result Interest)

// Event is the unit of registration: a file descriptor or signal number,
// an interest set, a deadline, and a callback. Event records are owned by
// the caller for their entire lifetime; the reactor holds only
// back-references via intrusive list/heap links. A caller must not reuse or
// discard an Event while any Membership bit is set.
type Event struct {
	fd       int
	interest Interest
	result   Interest
	callback Callback
	Arg      any

	membership Membership
	deadline   time.Time

	// ncalls/pncalls support signal coalescing: ncalls is the number of
	// times to invoke callback this iteration, and pncalls lets the
	// callback itself cut a coalesced run short by setting *pncalls = 0.
	ncalls  int
	pncalls *int

	registeredElem *list.Element
	activeElem     *list.Element
	signalElem     *list.Element
	heapIndex      int
	seq            uint64
}

// NewEvent initializes an Event for the given fd and interest set. Use -1
// for a pure-timer event. The event is not registered with any [Reactor]
// until passed to [Reactor.Add].
func NewEvent(fd int, interest Interest, cb Callback, arg any) *Event {
	return &Event{
		fd:         fd,
		interest:   interest,
		callback:   cb,
		Arg:        arg,
		membership: Initialized,
		heapIndex:  -1,
	}
}

// NewReadEvent is a convenience constructor for a READ-interest event on fd.
func NewReadEvent(fd int, cb Callback, arg any) *Event {
	return NewEvent(fd, Read, cb, arg)
}

// NewWriteEvent is a convenience constructor for a WRITE-interest event on fd.
func NewWriteEvent(fd int, cb Callback, arg any) *Event {
	return NewEvent(fd, Write, cb, arg)
}

// NewTimerEvent initializes a pure-timer event (fd = -1). Pass a duration to
// [Reactor.Add] to arm it.
func NewTimerEvent(cb Callback, arg any) *Event {
	return NewEvent(-1, 0, cb, arg)
}

// NewSignalEvent initializes a signal event: fd is set to the signal
// number and PERSIST|SIGNAL is forced into the interest set, matching the
// original library's signal_set alias.
func NewSignalEvent(sig syscall.Signal, cb Callback, arg any) *Event {
	return NewEvent(int(sig), Signal|Persist, cb, arg)
}

// FD returns the event's file descriptor, or the signal number for a
// SIGNAL-interest event, or -1 for a pure-timer event.
func (ev *Event) FD() int { return ev.fd }

// Interest returns the event's registered interest set.
func (ev *Event) Interest() Interest { return ev.interest }

// Membership returns the event's current queue-membership bitset.
func (ev *Event) Membership() Membership { return ev.membership }

// Deadline returns the event's absolute deadline and whether it is
// currently in the timer set.
func (ev *Event) Deadline() (time.Time, bool) {
	return ev.deadline, ev.membership&TimeoutSet != 0
}

// Initialized reports whether the event has ever been set up via NewEvent.
func (ev *Event) Initialized() bool { return ev.membership&Initialized != 0 }

// StopCoalescing cuts a coalesced signal-callback run short: called from
// within Callback during one of a signal event's repeated ncalls
// invocations, it prevents any further invocations for this activation.
// A no-op outside of a multi-call signal dispatch.
func (ev *Event) StopCoalescing() {
	if ev.pncalls != nil {
		*ev.pncalls = 0
	}
}
