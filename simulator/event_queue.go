package simulator

import "container/heap"

// EventQueue is a priority queue for scheduled events, ordered by fire time and
// then by registration sequence so that equal-time events run FIFO.
type EventQueue struct {
	events eventHeap
}

// NewEventQueue creates a new event queue
func NewEventQueue() *EventQueue {
	eq := &EventQueue{
		events: make(eventHeap, 0),
	}
	heap.Init(&eq.events)
	return eq
}

// Push adds an event to the queue
func (eq *EventQueue) Push(event *Event) {
	heap.Push(&eq.events, event)
}

// Pop removes and returns the next event
func (eq *EventQueue) Pop() *Event {
	if eq.IsEmpty() {
		return nil
	}
	return heap.Pop(&eq.events).(*Event)
}

// Peek returns the next event without removing it
func (eq *EventQueue) Peek() *Event {
	if eq.IsEmpty() {
		return nil
	}
	return eq.events[0]
}

// Remove drops a queued event. Events that are not queued are ignored.
func (eq *EventQueue) Remove(event *Event) {
	if event == nil || event.index < 0 || event.index >= len(eq.events) || eq.events[event.index] != event {
		return
	}
	heap.Remove(&eq.events, event.index)
}

// IsEmpty returns true if the queue is empty
func (eq *EventQueue) IsEmpty() bool {
	return eq.events.Len() == 0
}

// Len returns the number of events in the queue
func (eq *EventQueue) Len() int {
	return eq.events.Len()
}

// Clear removes all events from the queue
func (eq *EventQueue) Clear() {
	for _, ev := range eq.events {
		ev.index = -1
	}
	eq.events = eq.events[:0]
}

// Events returns all events in the queue (for inspection/debugging)
// Note: This returns a copy of the events slice to prevent external modification
func (eq *EventQueue) Events() []*Event {
	events := make([]*Event, len(eq.events))
	copy(events, eq.events)
	return events
}

// eventHeap implements heap.Interface for *Event
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x interface{}) {
	ev := x.(*Event)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[0 : n-1]
	return x
}
