package simulator

import (
	"fmt"
	"time"
)

// EventKind distinguishes one-shot from recurring scheduler entries
type EventKind int

const (
	EventOneShot EventKind = iota
	EventPeriodic
	EventRepeating // recurring with a freshly drawn gap each time
)

func (k EventKind) String() string {
	switch k {
	case EventOneShot:
		return "one_shot"
	case EventPeriodic:
		return "periodic"
	case EventRepeating:
		return "repeating"
	default:
		return "unknown"
	}
}

// Event is a scheduled callback. The pointer returned by the Scheduler doubles
// as the cancellation token; it stays valid for the lifetime of a periodic
// registration across re-registrations.
type Event struct {
	at       time.Duration
	seq      uint64
	kind     EventKind
	interval time.Duration
	next     func() time.Duration
	action   func()
	label    string

	index     int // position in the heap, -1 when not queued
	cancelled bool
	spent     bool // a one-shot that has run
	fired     int
}

// At returns the time the event will (next) fire.
func (e *Event) At() time.Duration { return e.at }

// Kind returns the event kind.
func (e *Event) Kind() EventKind { return e.kind }

// Label returns the optional debugging label.
func (e *Event) Label() string { return e.label }

// SetLabel attaches a debugging label and returns the event.
func (e *Event) SetLabel(label string) *Event {
	e.label = label
	return e
}

// Fired returns how many times the callback has run.
func (e *Event) Fired() int { return e.fired }

// Pending reports whether the event is still queued.
func (e *Event) Pending() bool { return e != nil && e.index >= 0 && !e.cancelled && !e.spent }

// Cancelled reports whether Cancel was called.
func (e *Event) Cancelled() bool { return e != nil && e.cancelled }

func (e *Event) String() string {
	if e.label != "" {
		return fmt.Sprintf("Event(%s, t=%v, seq=%d, %s)", e.label, e.at, e.seq, e.kind)
	}
	return fmt.Sprintf("Event(t=%v, seq=%d, %s)", e.at, e.seq, e.kind)
}
