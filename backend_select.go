package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// SelectBackend multiplexes fd readiness via select(2), grounded on the
// original library's select.c. It is the fallback backend: fd_set is
// fixed-size, so it cannot represent fds beyond unix.FD_SETSIZE.
//
// EVENT_NOSELECT in the environment (checked via the Reactor's configured
// environment lookup, see WithEnviron) disables this backend at Init time,
// matching select_init's getenv check.
type SelectBackend struct {
	r *Reactor

	maxFD int
	read  unix.FdSet
	write unix.FdSet
}

// NewSelectBackend constructs a SelectBackend. Call New with WithBackend to
// use it.
func NewSelectBackend() *SelectBackend {
	return &SelectBackend{maxFD: -1}
}

func (b *SelectBackend) Name() string { return "select" }

func (b *SelectBackend) Init(r *Reactor) error {
	if lookup := r.opts.environ; lookup != nil {
		if _, ok := lookup("EVENT_NOSELECT"); ok {
			return ErrBackendError
		}
	}
	b.r = r
	return nil
}

// Add is a no-op beyond tracking the new high-water fd: select_add in the
// original only updates event_fds, since fd_set membership is recomputed
// wholesale in Dispatch from the registered-event list every iteration.
func (b *SelectBackend) Add(ev *Event) error {
	if ev.fd > b.maxFD {
		b.maxFD = ev.fd
	}
	return nil
}

// Del is a no-op: select_del only routes signal removal, which the reactor
// handles via the signal subsystem before ever calling into the backend.
func (b *SelectBackend) Del(ev *Event) error {
	return nil
}

// Recalc updates the tracked high-water fd, matching select_recalc's max-fd
// maintenance (the fd_set arrays themselves are fixed-size in this
// implementation, so no resize is needed).
func (b *SelectBackend) Recalc(maxFD int) error {
	b.maxFD = maxFD
	return nil
}

// fdZero clears all bits in an fd_set.
func fdZero(set *unix.FdSet) {
	for i := range set.Bits {
		set.Bits[i] = 0
	}
}

// fdSet sets fd's bit in an fd_set.
func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

// fdIsSet reports whether fd's bit is set in an fd_set.
func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

func (b *SelectBackend) Dispatch(timeout *time.Duration) error {
	fdZero(&b.read)
	fdZero(&b.write)

	evs := registeredFDs(b.r)
	for _, ev := range evs {
		if ev.fd < 0 || ev.fd >= unix.FD_SETSIZE {
			continue
		}
		if ev.interest&Read != 0 {
			fdSet(&b.read, ev.fd)
		}
		if ev.interest&Write != 0 {
			fdSet(&b.write, ev.fd)
		}
	}

	globalSignals.drain()

	var tv *unix.Timeval
	if timeout != nil {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	n, err := unix.Select(b.maxFD+1, &b.read, &b.write, nil, tv)

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

	for _, ev := range evs {
		if ev.fd < 0 || ev.fd >= unix.FD_SETSIZE {
			continue
		}
		var res Interest
		if fdIsSet(&b.read, ev.fd) {
			res |= Read
		}
		if fdIsSet(&b.write, ev.fd) {
			res |= Write
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
