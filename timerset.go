package reactor

import "container/heap"

// timerSet is the reactor's timer ordered set (spec §4.2): events keyed by
// (deadline, insertion order), supporting O(log n) insert/remove and O(1)
// min. Grounded on the teacher's container/heap-based timerHeap, keyed here
// by absolute deadline instead of JS task scheduling order. remove is O(log
// n) because each Event carries its own heapIndex back-link, avoiding a
// linear scan.
type timerSet struct {
	items []*Event
}

func (h *timerSet) Len() int { return len(h.items) }

func (h *timerSet) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.deadline.Equal(b.deadline) {
		return a.seq < b.seq
	}
	return a.deadline.Before(b.deadline)
}

func (h *timerSet) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapIndex = i
	h.items[j].heapIndex = j
}

func (h *timerSet) Push(x any) {
	ev := x.(*Event)
	ev.heapIndex = len(h.items)
	h.items = append(h.items, ev)
}

func (h *timerSet) Pop() any {
	old := h.items
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.heapIndex = -1
	h.items = old[:n-1]
	return ev
}

// insert adds ev to the timer set. ev must not already be in it.
func (h *timerSet) insert(ev *Event) {
	heap.Push(h, ev)
}

// remove removes ev from the timer set if present; a no-op otherwise,
// matching event_del's tolerance of records not currently queued.
func (h *timerSet) remove(ev *Event) {
	if ev.heapIndex < 0 || ev.heapIndex >= len(h.items) || h.items[ev.heapIndex] != ev {
		return
	}
	heap.Remove(h, ev.heapIndex)
}

// min returns the event with the earliest deadline, without removing it.
func (h *timerSet) min() (*Event, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}
