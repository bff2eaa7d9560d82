//go:build !windows

package reactor

import (
	"container/list"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// signalSubsystem bridges asynchronous OS signal delivery to the
// single-threaded dispatch loop, grounded on the original library's
// deliver/recalc/process three-phase protocol (spec §4.3).
//
// The original narrows the process signal mask around the blocking
// readiness call so signals are only "live" while select/poll is asleep.
// Go's os/signal has no equivalent mask-narrowing primitive, so this
// instead keeps signal.Notify continuously armed for every currently
// registered signal and treats deliver/recalc as non-blocking drain points:
// deliver drains anything queued since the previous iteration just before
// the backend blocks, and recalc drains anything that arrived while the
// backend was blocked (including the signal that interrupted it with
// EINTR). Because only the dispatch-loop goroutine ever calls deliver,
// recalc, or process, and signal.Notify's channel send is the runtime's own
// synchronization point, no additional locking is needed for the drain
// itself; the mutex below only protects the registration maps, which Add
// and Del may touch reentrantly from a callback.
//
// Per spec §9's "process-wide state" design note, this state is a package
// singleton: concurrent reactors sharing overlapping signal numbers are not
// supported, matching the original's single process-wide signal table.
type signalSubsystem struct {
	mu     sync.Mutex
	events map[syscall.Signal]*list.List
	counts map[syscall.Signal]int
	armed  map[syscall.Signal]bool
	ch     chan os.Signal
}

var globalSignals = newSignalSubsystem()

func newSignalSubsystem() *signalSubsystem {
	return &signalSubsystem{
		events: make(map[syscall.Signal]*list.List),
		counts: make(map[syscall.Signal]int),
		armed:  make(map[syscall.Signal]bool),
		ch:     make(chan os.Signal, 64),
	}
}

// add registers ev on its signal's delivery list, arming signal.Notify for
// that signal number on first registration.
func (s *signalSubsystem) add(ev *Event) {
	sig := syscall.Signal(ev.fd)

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.events[sig]
	if !ok {
		l = list.New()
		s.events[sig] = l
	}
	ev.signalElem = l.PushBack(ev)
	ev.membership |= SignalList

	if !s.armed[sig] {
		signal.Notify(s.ch, sig)
		s.armed[sig] = true
	}
}

// del removes ev from its signal's delivery list, disarming signal.Notify
// for that signal number once no event cares about it anymore.
func (s *signalSubsystem) del(ev *Event) {
	sig := syscall.Signal(ev.fd)

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.events[sig]
	if ok && ev.signalElem != nil {
		l.Remove(ev.signalElem)
		ev.signalElem = nil
	}
	ev.membership &^= SignalList

	if ok && l.Len() == 0 && s.armed[sig] {
		signal.Reset(sig)
		delete(s.armed, sig)
		delete(s.counts, sig)
	}
}

// drain non-blockingly pulls every pending notification off the channel
// into the per-signal counters. Called both immediately before the backend
// blocks (the original's "deliver") and immediately after it returns (the
// original's "recalc"): either call may observe a given signal occurrence
// first, since Go delivers it on its own schedule relative to the blocking
// syscall, but no occurrence is lost between the two drain points.
func (s *signalSubsystem) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case raw := <-s.ch:
			if sig, ok := raw.(syscall.Signal); ok {
				s.counts[sig]++
			}
		default:
			return
		}
	}
}

// caught reports whether any signal has a non-zero pending count.
func (s *signalSubsystem) caught() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.counts {
		if n > 0 {
			return true
		}
	}
	return false
}

// process moves every signal with a non-zero counter onto r's active queue,
// one Active call per registered event carrying ncalls = the counter value,
// then resets all counters to zero.
func (s *signalSubsystem) process(r *Reactor) {
	s.mu.Lock()
	pending := make(map[syscall.Signal]int, len(s.counts))
	for sig, n := range s.counts {
		if n > 0 {
			pending[sig] = n
			s.counts[sig] = 0
		}
	}
	s.mu.Unlock()

	for sig, n := range pending {
		s.mu.Lock()
		l := s.events[sig]
		var evs []*Event
		if l != nil {
			evs = make([]*Event, 0, l.Len())
			for e := l.Front(); e != nil; e = e.Next() {
				evs = append(evs, e.Value.(*Event))
			}
		}
		s.mu.Unlock()

		for _, ev := range evs {
			r.Active(ev, Signal, n)
		}
		if r.metricsEnabled {
			r.metrics.SignalDeliveries += int64(n)
		}
		if r.logger != nil {
			logSignalDelivered(r.logger, r.id, int(sig), n)
		}
	}
}
