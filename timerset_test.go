package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerSet_OrdersByDeadlineThenSeq(t *testing.T) {
	var set timerSet

	base := time.Now()
	a := &Event{deadline: base.Add(2 * time.Second), seq: 1, heapIndex: -1}
	b := &Event{deadline: base.Add(1 * time.Second), seq: 2, heapIndex: -1}
	c := &Event{deadline: base.Add(1 * time.Second), seq: 0, heapIndex: -1}

	set.insert(a)
	set.insert(b)
	set.insert(c)

	min, ok := set.min()
	require.True(t, ok)
	require.Same(t, c, min, "equal deadlines should break ties by insertion seq")

	set.remove(c)
	min, ok = set.min()
	require.True(t, ok)
	require.Same(t, b, min)

	set.remove(b)
	min, ok = set.min()
	require.True(t, ok)
	require.Same(t, a, min)

	set.remove(a)
	_, ok = set.min()
	require.False(t, ok)
}

func TestTimerSet_RemoveMissingIsNoOp(t *testing.T) {
	var set timerSet
	ev := &Event{heapIndex: -1}
	require.NotPanics(t, func() { set.remove(ev) })
}

func TestTimerSet_RemoveFromMiddle(t *testing.T) {
	var set timerSet
	base := time.Now()

	events := make([]*Event, 5)
	for i := range events {
		events[i] = &Event{deadline: base.Add(time.Duration(i) * time.Second), seq: uint64(i), heapIndex: -1}
		set.insert(events[i])
	}

	set.remove(events[2])
	require.Equal(t, 4, set.Len())

	var order []uint64
	for set.Len() > 0 {
		m, _ := set.min()
		order = append(order, m.seq)
		set.remove(m)
	}
	require.Equal(t, []uint64{0, 1, 3, 4}, order)
}
