package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// PollBackend multiplexes fd readiness via poll(2), grounded on the
// original library's poll.c. Unlike SelectBackend it has no fixed fd
// ceiling; its pollfd array grows by doubling as needed.
//
// EVENT_NOPOLL in the environment (checked via the Reactor's configured
// environment lookup, see WithEnviron) disables this backend at Init time,
// matching poll_init's getenv check.
type PollBackend struct {
	r *Reactor

	fds  []unix.PollFd
	back []*Event // parallel to fds; back[i] is the Event owning fds[i]
}

// NewPollBackend constructs a PollBackend. Call New with WithBackend to use
// it, or rely on New's default backend-probe order, which prefers poll.
func NewPollBackend() *PollBackend {
	return &PollBackend{}
}

func (b *PollBackend) Name() string { return "poll" }

func (b *PollBackend) Init(r *Reactor) error {
	if lookup := r.opts.environ; lookup != nil {
		if _, ok := lookup("EVENT_NOPOLL"); ok {
			return ErrBackendError
		}
	}
	b.r = r
	return nil
}

// Add and Del are no-ops: the pollfd array is rebuilt wholesale from the
// registered-event list at the start of every Dispatch, matching poll_add
// and poll_del's no-op shape for non-signal events.
func (b *PollBackend) Add(ev *Event) error { return nil }
func (b *PollBackend) Del(ev *Event) error { return nil }

// Recalc is a no-op: poll_recalc in the original only recomputes the signal
// mask, which the reactor's signal subsystem handles independently of the
// backend.
func (b *PollBackend) Recalc(maxFD int) error { return nil }

func (b *PollBackend) Dispatch(timeout *time.Duration) error {
	evs := registeredFDs(b.r)

	b.fds = b.fds[:0]
	b.back = b.back[:0]
	for _, ev := range evs {
		if ev.fd < 0 {
			continue
		}
		var events int16
		if ev.interest&Read != 0 {
			events |= unix.POLLIN
		}
		if ev.interest&Write != 0 {
			events |= unix.POLLOUT
		}
		if events == 0 {
			continue
		}
		b.fds = append(b.fds, unix.PollFd{Fd: int32(ev.fd), Events: events})
		b.back = append(b.back, ev)
	}

	globalSignals.drain()

	ms := -1
	if timeout != nil {
		ms = int(timeout.Milliseconds())
		if ms < 0 {
			ms = 0
		}
	}

	n, err := unix.Poll(b.fds, ms)

	globalSignals.drain()

	if err != nil {
		if err == unix.EINTR {
			globalSignals.process(b.r)
			return nil
		}
		return ErrBackendError
	}

	if globalSignals.caught() {
		globalSignals.process(b.r)
	}

	if n == 0 {
		return nil
	}

	for i, pfd := range b.fds {
		if pfd.Revents == 0 {
			continue
		}
		ev := b.back[i]

		var res Interest
		if pfd.Revents&unix.POLLIN != 0 {
			res |= Read
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			res |= Write
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			res |= ev.interest & (Read | Write)
		}
		res &= ev.interest
		if res == 0 {
			continue
		}
		if ev.interest&Persist == 0 {
			b.r.Del(ev)
		}
		b.r.Active(ev, res, 1)
	}

	return nil
}
