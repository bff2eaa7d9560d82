// Package reactor provides a portable, single-threaded event-notification
// library: fd readiness, timers, and OS signals multiplexed through one
// cooperative dispatch loop, in the tradition of libevent.
//
// # Architecture
//
// The reactor is built around a [Reactor] core that owns the registered and
// active event queues, the timer ordered set, and the signal subsystem. I/O
// readiness is sourced from a pluggable [Backend] — [SelectBackend] and
// [PollBackend] are provided, wrapping the select(2) and poll(2) syscalls via
// golang.org/x/sys/unix. A [BufferedEvent] layers a read/write [Buffer] pair
// with watermark back-pressure on top of a plain fd [Event].
//
// # Platform Support
//
// Both backends are POSIX-only (select(2) and poll(2) via
// golang.org/x/sys/unix); Windows is not supported. Applications pick a
// backend explicitly via [WithBackend], or let [New] probe in preference
// order (poll, then select), honoring EVENT_NOPOLL/EVENT_NOSELECT
// environment exclusion the way the original library does.
//
// # Thread Safety
//
// The reactor is strictly single-threaded and cooperative: [Reactor.Loop]
// must run on one goroutine, and [Reactor.Add], [Reactor.Del], and
// [Reactor.Active] must only be called from that goroutine or from within an
// event callback. No locks are taken on reactor or buffer state. The sole
// exception is signal delivery, which arrives via a Go runtime-managed
// channel and is drained synchronously at each dispatch boundary — see the
// signal subsystem's deliver/recalc/process phases.
//
// # Dispatch Loop
//
// Each call to [Reactor.Loop] runs until [Reactor.LoopExit] is called, or no
// events, timers, or signals remain registered. [LoopOnce] runs a single
// iteration regardless; [LoopNonBlock] forces every iteration's backend
// dispatch to return immediately rather than wait for the next deadline.
// One iteration:
//
//  1. Run expired timers (earliest deadline first), moving each to the
//     active queue.
//  2. Drain the active queue, invoking each event's callback once (or, for
//     signals, ncalls times).
//  3. Recompute the poll timeout from the next timer deadline.
//  4. Block in Backend.Dispatch until an fd is ready, the timeout elapses,
//     or a signal arrives.
//  5. Deliver newly ready fds and signals to the active queue and repeat.
//
// # Usage
//
//	r, err := reactor.New(reactor.WithBackend(reactor.NewPollBackend()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	ev := reactor.NewReadEvent(fd, func(r *reactor.Reactor, ev *reactor.Event, res reactor.Interest) {
//	    fmt.Println("fd is readable")
//	    r.LoopExit()
//	}, nil)
//	if err := r.Add(ev, 0); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := r.Loop(0); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Types
//
// The package exposes a small set of sentinel errors for the failure kinds
// the reactor distinguishes ([ErrAllocFailed], [ErrBackendError],
// [ErrReactorClosed], [ErrNoEvents], [ErrConflictingInterest],
// [ErrNotInitialized]) plus [PanicError], which wraps a
// panic recovered from a callback so one bad handler cannot take down the
// dispatch loop. The sentinels are matched with [errors.Is]; PanicError
// implements Unwrap, so [errors.Is] and [errors.As] also see a panic value
// that is itself an error.
package reactor
