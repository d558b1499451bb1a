package simulator

import "time"

// Scheduler owns simulation time for one trial and runs scheduled callbacks in
// (fire time, registration order) order.
//
// It is a pure discrete event loop with no concurrency primitives. Callbacks run
// to completion; anything they schedule for the current instant runs later in
// the same AdvanceTo pass, after everything already queued for that instant.
type Scheduler struct {
	now     time.Duration
	seq     uint64
	queue   *EventQueue
	current *Event
	running bool
	fired   uint64
}

// NewScheduler creates a scheduler with the clock at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{queue: NewEventQueue()}
}

// Now returns the current simulation time.
func (s *Scheduler) Now() time.Duration { return s.now }

// Len returns the number of pending events.
func (s *Scheduler) Len() int { return s.queue.Len() }

// IsEmpty reports whether nothing is scheduled.
func (s *Scheduler) IsEmpty() bool { return s.queue.IsEmpty() }

// Fired returns the number of callbacks executed since the last Reset.
func (s *Scheduler) Fired() uint64 { return s.fired }

// Current returns the event whose callback is executing, or nil.
func (s *Scheduler) Current() *Event { return s.current }

// NextAt returns the fire time of the earliest pending event.
func (s *Scheduler) NextAt() (time.Duration, bool) {
	ev := s.queue.Peek()
	if ev == nil {
		return 0, false
	}
	return ev.at, true
}

// Schedule runs action once after delay. A negative delay is a caller bug.
func (s *Scheduler) Schedule(delay time.Duration, action func()) *Event {
	precondition(delay >= 0, "negative schedule delay %v at t=%v", delay, s.now)
	return s.push(&Event{at: s.now + delay, kind: EventOneShot, action: action, index: -1})
}

// ScheduleAt runs action once at an absolute time that must not be in the past.
func (s *Scheduler) ScheduleAt(at time.Duration, action func()) *Event {
	precondition(at >= s.now, "schedule at %v is before now (%v)", at, s.now)
	return s.push(&Event{at: at, kind: EventOneShot, action: action, index: -1})
}

// SchedulePeriodic runs action every interval, first after one full interval.
func (s *Scheduler) SchedulePeriodic(interval time.Duration, action func()) *Event {
	return s.SchedulePeriodicFrom(interval, interval, action)
}

// SchedulePeriodicFrom runs action first after delay and then every interval
// after that. Each recurrence is anchored on the previous fire time, never on
// the time the callback happened to finish.
func (s *Scheduler) SchedulePeriodicFrom(delay, interval time.Duration, action func()) *Event {
	precondition(delay >= 0, "negative schedule delay %v at t=%v", delay, s.now)
	precondition(interval > 0, "periodic interval must be positive, got %v", interval)
	return s.push(&Event{at: s.now + delay, kind: EventPeriodic, interval: interval, action: action, index: -1})
}

// ScheduleRepeating runs action at gaps drawn from next. The first gap is drawn
// immediately; each later gap is drawn after the callback returns and added to
// the previous fire time.
func (s *Scheduler) ScheduleRepeating(next func() time.Duration, action func()) *Event {
	first := next()
	precondition(first >= 0, "negative repeating gap %v", first)
	return s.push(&Event{at: s.now + first, kind: EventRepeating, next: next, action: action, index: -1})
}

// Cancel invalidates an event. Cancelling a fired one-shot or an already
// cancelled event is a no-op, as is cancelling nil.
func (s *Scheduler) Cancel(ev *Event) {
	if ev == nil || ev.cancelled || ev.spent {
		return
	}
	ev.cancelled = true
	s.queue.Remove(ev)
}

// AdvanceTo executes every event due at or before t and leaves the clock at t.
func (s *Scheduler) AdvanceTo(t time.Duration) {
	precondition(t >= s.now, "advance to %v is before now (%v)", t, s.now)
	precondition(!s.running, "re-entrant AdvanceTo at t=%v", s.now)
	s.running = true
	defer func() { s.running = false }()

	for {
		ev := s.queue.Peek()
		if ev == nil || ev.at > t {
			break
		}
		s.queue.Pop()
		s.now = ev.at
		s.run(ev)
	}
	s.now = t
}

// RunUntilIdle executes events until the queue is empty or the next event is
// after limit. It returns the time of the last executed event.
func (s *Scheduler) RunUntilIdle(limit time.Duration) time.Duration {
	last := s.now
	precondition(!s.running, "re-entrant RunUntilIdle at t=%v", s.now)
	s.running = true
	defer func() { s.running = false }()
	for {
		ev := s.queue.Peek()
		if ev == nil || ev.at > limit {
			return last
		}
		s.queue.Pop()
		s.now = ev.at
		last = ev.at
		s.run(ev)
	}
}

// Reset drops every pending event and rewinds the clock to zero. Handles held
// by callers become inert.
func (s *Scheduler) Reset() {
	for _, ev := range s.queue.Events() {
		ev.cancelled = true
	}
	s.queue.Clear()
	s.now = 0
	s.seq = 0
	s.fired = 0
	s.current = nil
}

func (s *Scheduler) push(ev *Event) *Event {
	s.seq++
	ev.seq = s.seq
	s.queue.Push(ev)
	return ev
}

func (s *Scheduler) run(ev *Event) {
	prev := s.current
	s.current = ev
	ev.fired++
	s.fired++
	if ev.action != nil {
		ev.action()
	}
	s.current = prev

	if ev.cancelled {
		return
	}
	switch ev.kind {
	case EventPeriodic:
		ev.at += ev.interval
		s.push(ev)
	case EventRepeating:
		gap := ev.next()
		precondition(gap >= 0, "negative repeating gap %v", gap)
		ev.at += gap
		s.push(ev)
	default:
		ev.spent = true
	}
}
