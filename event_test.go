package reactor

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEvent_Initialized(t *testing.T) {
	ev := NewEvent(3, Read, func(r *Reactor, ev *Event, result Interest) {}, nil)
	require.True(t, ev.Initialized())
	require.Equal(t, 3, ev.FD())
	require.Equal(t, Read, ev.Interest())
	require.Equal(t, Initialized, ev.Membership())
}

func TestNewReadWriteEvent(t *testing.T) {
	r := NewReadEvent(1, func(r *Reactor, ev *Event, result Interest) {}, nil)
	require.Equal(t, Read, r.Interest())

	w := NewWriteEvent(2, func(r *Reactor, ev *Event, result Interest) {}, nil)
	require.Equal(t, Write, w.Interest())
}

func TestNewTimerEvent(t *testing.T) {
	ev := NewTimerEvent(func(r *Reactor, ev *Event, result Interest) {}, "payload")
	require.Equal(t, -1, ev.FD())
	require.Equal(t, Interest(0), ev.Interest())
	require.Equal(t, "payload", ev.Arg)
}

func TestNewSignalEvent_ForcesSignalAndPersist(t *testing.T) {
	ev := NewSignalEvent(syscall.SIGUSR1, func(r *Reactor, ev *Event, result Interest) {}, nil)
	require.Equal(t, int(syscall.SIGUSR1), ev.FD())
	require.True(t, ev.Interest()&Signal != 0)
	require.True(t, ev.Interest()&Persist != 0)
}

func TestEvent_DeadlineReportsTimeoutSetBit(t *testing.T) {
	ev := NewTimerEvent(func(r *Reactor, ev *Event, result Interest) {}, nil)
	_, set := ev.Deadline()
	require.False(t, set)

	ev.membership |= TimeoutSet
	_, set = ev.Deadline()
	require.True(t, set)
}
