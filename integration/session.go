package integration

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/miretskiy/procsim/simulator"
)

// LogEntry is one state change observed while stepping a session.
type LogEntry struct {
	At      time.Duration `json:"at"`
	Actor   string        `json:"actor"`
	Kind    string        `json:"kind"`
	Message string        `json:"message"`
}

// MetricSample is a point-in-time value emitted after a step.
type MetricSample struct {
	Name  string            `json:"name"`
	Type  string            `json:"type"` // "gauge" or "counter"
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags"`
}

// StepResult is the outcome of advancing a session.
type StepResult struct {
	From    time.Duration  `json:"from"`
	To      time.Duration  `json:"to"`
	Done    bool           `json:"done"`
	Logs    []LogEntry     `json:"logs"`
	Metrics []MetricSample `json:"metrics"`
}

// Session steps a single trial incrementally. It is safe for concurrent use;
// the simulator underneath is only ever touched under the session lock.
type Session struct {
	mu   sync.Mutex
	sim  *simulator.Simulator
	logs []LogEntry
	done bool
}

// NewSession builds a simulator from cfg, resets it and starts combat.
func NewSession(cfg simulator.SimConfig, opts ...simulator.Option) (*Session, error) {
	sim, err := NewSimulator(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulator: %w", err)
	}
	s := &Session{sim: sim}
	for _, a := range sim.Actors() {
		for _, b := range a.Buffs() {
			b.OnStacksChanged(s.recordStacks)
		}
	}
	sim.Reset()
	sim.CombatStart()
	return s, nil
}

// Simulator exposes the wrapped simulator. Callers must not step it directly.
func (s *Session) Simulator() *simulator.Simulator { return s.sim }

// Now returns the current virtual time.
func (s *Session) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.VirtualTime()
}

// Done reports whether the trial reached its configured duration.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Advance steps the trial by d, clamped to the configured duration. Reaching
// the end closes combat; advancing a finished session is an error.
func (s *Session) Advance(d time.Duration) (*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d < 0 {
		return nil, fmt.Errorf("advance by negative duration %v", d)
	}
	if s.done {
		return nil, fmt.Errorf("session finished at %v", s.sim.VirtualTime())
	}
	from := s.sim.VirtualTime()
	end := s.sim.Config().Duration()
	to := min(from+d, end)
	s.sim.StepUntil(to)
	if to >= end {
		s.sim.CombatEnd()
		s.done = true
	}

	res := &StepResult{
		From:    from,
		To:      s.sim.VirtualTime(),
		Done:    s.done,
		Logs:    s.logs,
		Metrics: s.samplesLocked(),
	}
	s.logs = nil
	return res, nil
}

// Samples returns the current gauges and counters.
func (s *Session) Samples() []MetricSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samplesLocked()
}

func (s *Session) samplesLocked() []MetricSample {
	var out []MetricSample
	for _, a := range s.sim.Actors() {
		for _, b := range a.Buffs() {
			out = append(out, MetricSample{
				Name:  "buff_stacks",
				Type:  "gauge",
				Value: float64(b.Stacks()),
				Tags:  map[string]string{"actor": a.Name(), "buff": b.Name()},
			})
		}
		for _, p := range a.Procs() {
			out = append(out, MetricSample{
				Name:  "proc_fires",
				Type:  "counter",
				Value: float64(p.Stats().Fires),
				Tags:  map[string]string{"actor": a.Name(), "proc": p.Name()},
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Session) recordStacks(b *simulator.Buff, oldStacks, newStacks int) {
	kind := "stacks"
	switch {
	case oldStacks == 0:
		kind = "gain"
	case newStacks == 0:
		kind = "fade"
	}
	s.logs = append(s.logs, LogEntry{
		At:      b.Actor().Now(),
		Actor:   b.Actor().Name(),
		Kind:    kind,
		Message: fmt.Sprintf("%s %d->%d", b.Name(), oldStacks, newStacks),
	})
}
