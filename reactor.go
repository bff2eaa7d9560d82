package reactor

import (
	"container/list"
	"fmt"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"
)

var reactorIDSeq int64

// Reactor is a single-threaded event multiplexer: file descriptor
// readiness, timers, and OS signals, all delivered through one cooperative
// dispatch loop. Grounded on the teacher's Loop (tick/runTimers/
// calculateTimeout/run), generalized from JS task scheduling to the
// register/arm/fire event model described by the original libevent-style
// design.
//
// A Reactor must be driven from a single goroutine: Loop, Add, Del, and
// Active are not safe to call concurrently, though Add/Del/Active may be
// called reentrantly from within a callback running on the loop goroutine.
type Reactor struct {
	id int64

	opts    *reactorOptions
	backend Backend
	logger  Logger

	registered *list.List // *Event, Registered membership
	active     *list.List // *Event, MembershipActive membership
	timers     timerSet

	state ReactorState

	metricsEnabled bool
	metrics        Metrics

	seq int64

	exitRequested bool
	closed        bool
}

// LoopFlags modify a single call to Reactor.Loop, mirroring event_loop's
// EVLOOP_ONCE and EVLOOP_NONBLOCK.
type LoopFlags int

const (
	// LoopOnce runs exactly one dispatch iteration and returns, regardless
	// of whether work remains registered afterward.
	LoopOnce LoopFlags = 1 << iota
	// LoopNonBlock forces every Backend.Dispatch call made during this Loop
	// to return immediately instead of waiting for the next timer deadline.
	LoopNonBlock
)

// New constructs a Reactor. If no backend is given via WithBackend, New
// probes in preference order (poll, then select), skipping any backend
// whose Init reports it is disabled by environment exclusion.
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.environ == nil {
		cfg.environ = os.LookupEnv
	}
	if cfg.logger == nil {
		cfg.logger = getGlobalLogger()
	}

	r := &Reactor{
		id:             atomic.AddInt64(&reactorIDSeq, 1),
		opts:           cfg,
		logger:         cfg.logger,
		registered:     list.New(),
		active:         list.New(),
		metricsEnabled: cfg.metricsEnabled,
		state:          StateIdle,
	}
	r.timers.items = nil

	backend := cfg.backend
	if backend == nil {
		for _, candidate := range []Backend{NewPollBackend(), NewSelectBackend()} {
			if err := candidate.Init(r); err == nil {
				backend = candidate
				break
			}
		}
		if backend == nil {
			return nil, ErrBackendError
		}
	} else if err := backend.Init(r); err != nil {
		return nil, err
	}
	r.backend = backend

	return r, nil
}

// Metrics returns the reactor's live metrics. Only meaningful if
// WithMetrics(true) was passed to New; otherwise all fields stay zero.
func (r *Reactor) Metrics() *Metrics { return &r.metrics }

// Add registers ev with the reactor. If ev has Timeout-eligible registration
// (a non-zero timeout argument), its deadline is set to now+timeout; a zero
// timeout leaves any previously set deadline untouched for a Persist event
// being re-added. Mirrors event_add's three-step shape: deadline handling,
// READ|WRITE backend registration, SIGNAL registration.
func (r *Reactor) Add(ev *Event, timeout time.Duration) error {
	if r.closed {
		return ErrReactorClosed
	}
	if !ev.Initialized() {
		return ErrNotInitialized
	}

	if ev.membership&Registered == 0 && ev.fd >= 0 && ev.interest&(Read|Write) != 0 {
		for e := r.registered.Front(); e != nil; e = e.Next() {
			other := e.Value.(*Event)
			if other != ev && other.fd == ev.fd && other.interest&ev.interest&(Read|Write) != 0 {
				return ErrConflictingInterest
			}
		}
	}

	if timeout > 0 {
		if ev.membership&TimeoutSet != 0 {
			r.timers.remove(ev)
		}
		ev.deadline = time.Now().Add(timeout)
		ev.seq = uint64(r.nextSeq())
		r.timers.insert(ev)
		ev.membership |= TimeoutSet
	}

	if ev.interest&Signal != 0 {
		if ev.membership&SignalList == 0 {
			globalSignals.add(ev)
		}
	} else if ev.fd >= 0 && ev.interest&(Read|Write) != 0 {
		if ev.membership&Registered == 0 {
			ev.registeredElem = r.registered.PushBack(ev)
			ev.membership |= Registered
			if err := r.backend.Add(ev); err != nil {
				return err
			}
			if err := r.backend.Recalc(maxRegisteredFD(r)); err != nil {
				return err
			}
		}
	}

	return nil
}

// Del removes ev from every queue it belongs to: the registered list, the
// timer set, the signal list, and the active queue, calling the backend's
// Del if it was fd-registered. Safe to call on an event not currently
// registered anywhere.
func (r *Reactor) Del(ev *Event) error {
	if r.closed {
		return ErrReactorClosed
	}
	if ev.membership&TimeoutSet != 0 {
		r.timers.remove(ev)
		ev.membership &^= TimeoutSet
	}

	if ev.membership&Registered != 0 {
		r.registered.Remove(ev.registeredElem)
		ev.registeredElem = nil
		ev.membership &^= Registered
		if err := r.backend.Del(ev); err != nil {
			return err
		}
		if err := r.backend.Recalc(maxRegisteredFD(r)); err != nil {
			return err
		}
	}

	if ev.membership&SignalList != 0 {
		globalSignals.del(ev)
	}

	if ev.membership&MembershipActive != 0 {
		r.active.Remove(ev.activeElem)
		ev.activeElem = nil
		ev.membership &^= MembershipActive
	}

	return nil
}

// Active moves ev onto the active queue with the given result mask and call
// count, OR-accumulating the result mask if ev is already active. Idempotent
// with respect to queue membership: calling Active twice before the queue is
// drained does not duplicate ev's entry. ncalls and an optional *int
// countdown support signal coalescing (spec §4.3): a signal event fires
// ncalls times from one Active call, and its callback may cut a run short by
// calling ev.StopCoalescing.
func (r *Reactor) Active(ev *Event, result Interest, ncalls int) {
	ev.result |= result
	ev.ncalls = ncalls

	if ev.membership&MembershipActive == 0 {
		ev.activeElem = r.active.PushBack(ev)
		ev.membership |= MembershipActive
	}
}

// Pending reports whether ev currently belongs to any reactor queue.
func (r *Reactor) Pending(ev *Event) bool {
	return ev.membership&(Registered|MembershipActive|SignalList|TimeoutSet) != 0
}

// LoopExit requests that Loop return after the current iteration finishes
// draining the active queue.
func (r *Reactor) LoopExit() {
	r.exitRequested = true
}

// State returns the reactor's current lifecycle state.
func (r *Reactor) State() ReactorState { return r.state }

func (r *Reactor) nextSeq() int64 {
	r.seq++
	return r.seq
}

// Loop runs the dispatch loop until LoopExit is called or no events, timers,
// or signals remain registered. See the package doc for the five-step
// iteration algorithm. flags may combine LoopOnce and LoopNonBlock; pass 0
// for the default run-to-completion behavior.
//
// Loop returns ErrReactorClosed if the reactor has been closed,
// ErrNoEvents if no events, timers, or signals are registered at entry
// (matching event_loop's "1: no events pending" return), ErrBackendError if
// Backend.Dispatch fails in a way that is not transient, or nil on a clean
// exit (LoopExit called, or all work drained).
func (r *Reactor) Loop(flags LoopFlags) error {
	if r.closed {
		return ErrReactorClosed
	}
	if !r.hasWork() {
		return ErrNoEvents
	}

	r.state = StateRunning
	for {
		if r.exitRequested {
			break
		}

		start := time.Now()
		err := r.tick(flags)
		if r.metricsEnabled {
			r.metrics.record(time.Since(start))
		}
		if err != nil {
			r.state = StateTerminated
			return err
		}

		if flags&LoopOnce != 0 {
			break
		}
		if !r.hasWork() {
			break
		}
	}
	r.state = StateTerminated
	return nil
}

// hasWork reports whether the reactor has any registered fd events, pending
// timers, active callbacks, or registered signal events left to run; Loop
// exits once this is false, matching event_loop's "no events pending"
// termination.
func (r *Reactor) hasWork() bool {
	if r.registered.Len() > 0 || len(r.timers.items) > 0 || r.active.Len() > 0 {
		return true
	}
	globalSignals.mu.Lock()
	defer globalSignals.mu.Unlock()
	for _, l := range globalSignals.events {
		if l.Len() > 0 {
			return true
		}
	}
	return false
}

// tick runs one dispatch-loop iteration: harvest expired timers, drain the
// active queue, compute the next backend timeout, and block in the backend
// once. A non-transient Backend.Dispatch error aborts the iteration and is
// returned wrapped in ErrBackendError; Loop bails out to its caller rather
// than spinning on a persistently failing backend.
func (r *Reactor) tick(flags LoopFlags) error {
	r.runTimers()
	r.drainActive()

	if r.exitRequested {
		return nil
	}

	timeout := r.calculateTimeout()
	if flags&LoopNonBlock != 0 {
		zero := time.Duration(0)
		timeout = &zero
	}

	r.state = StateDispatching
	if err := r.backend.Dispatch(timeout); err != nil {
		if r.logger != nil {
			logBackendError(r.logger, r.id, err, true)
		}
		r.state = StateRunning
		return fmt.Errorf("%w: %v", ErrBackendError, err)
	}
	r.state = StateRunning
	if r.metricsEnabled {
		r.metrics.BackendPolls++
	}

	r.runTimers()
	r.drainActive()
	return nil
}

// runTimers moves every timer whose deadline has elapsed onto the active
// queue, earliest deadline first.
func (r *Reactor) runTimers() {
	now := time.Now()
	for {
		ev, ok := r.timers.min()
		if !ok || ev.deadline.After(now) {
			return
		}
		r.timers.remove(ev)
		ev.membership &^= TimeoutSet
		if r.logger != nil {
			logTimerFired(r.logger, r.id, int64(ev.seq))
		}
		r.Active(ev, Timeout, 1)
	}
}

// calculateTimeout derives the backend's block duration from the nearest
// timer deadline, or nil (block indefinitely) if no timers are pending.
func (r *Reactor) calculateTimeout() *time.Duration {
	ev, ok := r.timers.min()
	if !ok {
		return nil
	}
	d := time.Until(ev.deadline)
	if d < 0 {
		d = 0
	}
	return &d
}

// drainActive invokes every event on the active queue. For a signal event,
// the callback runs ncalls times, and may stop early via ev.StopCoalescing,
// which zeroes the countdown. A non-Persist event is left unregistered once
// its callback returns: the backends Del an fd event before activating it,
// and any non-Persist event still registered (for instance one whose
// timeout fired) is deleted here before its callback runs.
func (r *Reactor) drainActive() {
	for {
		front := r.active.Front()
		if front == nil {
			return
		}
		ev := front.Value.(*Event)
		r.active.Remove(front)
		ev.activeElem = nil
		ev.membership &^= MembershipActive

		if ev.interest&Persist == 0 && ev.membership&Registered != 0 {
			_ = r.Del(ev)
		}

		result := ev.result
		ncalls := ev.ncalls
		if ncalls < 1 {
			ncalls = 1
		}
		ev.result = 0
		ev.ncalls = 0

		remaining := ncalls
		ev.pncalls = &remaining

		for i := 0; i < ncalls && remaining > 0; i++ {
			r.invoke(ev, result)
		}
		ev.pncalls = nil

		if r.metricsEnabled {
			r.metrics.ActiveProcessed++
		}
	}
}

// invoke runs ev's callback, recovering a panic into a logged PanicError so
// one bad handler cannot take down the dispatch loop.
func (r *Reactor) invoke(ev *Event, result Interest) {
	defer func() {
		if rec := recover(); rec != nil {
			perr := &PanicError{Value: rec, Stack: debug.Stack()}
			if r.logger != nil {
				logCallbackPanicked(r.logger, r.id, int64(ev.seq), perr)
			}
		}
		if ev.pncalls != nil && *ev.pncalls > 0 {
			*ev.pncalls--
		}
	}()
	ev.callback(r, ev, result)
}

// Close releases the reactor's process-wide resources, primarily signal
// registrations held by still-registered signal events. It does not wait
// for Loop to return; call LoopExit first if Loop is running. Close is
// idempotent: a second call returns ErrReactorClosed, as does any call to
// Add, Del, or Loop made after the first Close.
func (r *Reactor) Close() error {
	if r.closed {
		return ErrReactorClosed
	}
	for e := r.registered.Front(); e != nil; {
		next := e.Next()
		ev := e.Value.(*Event)
		_ = r.Del(ev)
		e = next
	}
	globalSignals.mu.Lock()
	var sigEvs []*Event
	for _, l := range globalSignals.events {
		for e := l.Front(); e != nil; e = e.Next() {
			sigEvs = append(sigEvs, e.Value.(*Event))
		}
	}
	globalSignals.mu.Unlock()
	for _, ev := range sigEvs {
		_ = r.Del(ev)
	}
	for {
		ev, ok := r.timers.min()
		if !ok {
			break
		}
		r.timers.remove(ev)
		ev.membership &^= TimeoutSet
	}
	r.closed = true
	return nil
}
