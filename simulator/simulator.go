package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Simulator runs independent trials of a configured set of actors. It is a
// pure discrete event simulator with no concurrency primitives: all state is
// accessed single-threaded through RunTrial, Run or StepUntil. Parallelism, if
// wanted, means one Simulator per goroutine.
type Simulator struct {
	config     SimConfig
	registry   *Registry
	sched      *Scheduler
	actors     []*Actor
	actorIndex map[string]*Actor
	metrics    *Metrics
	seed       int64
	trial      int
	inCombat   bool
	logger     *slog.Logger

	actorSetup    []func(a *Actor) error
	onCombatStart []func(s *Simulator)
	onCombatEnd   []func(s *Simulator)

	// Event logging callback (optional, for CLI/debugging)
	LogEvent func(msg string)
}

// Option customizes a Simulator.
type Option func(*Simulator)

// WithLogger sets the structured logger shared by the simulator and its actors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithActorSetup runs fn for every actor after its content has been set up.
// An error aborts construction.
func WithActorSetup(fn func(a *Actor) error) Option {
	return func(s *Simulator) { s.actorSetup = append(s.actorSetup, fn) }
}

// NewSimulator validates config, resolves the run seed, builds every actor and
// instantiates its content through registry. The registry is frozen. Setup
// errors abort construction.
func NewSimulator(config SimConfig, registry *Registry, opts ...Option) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewRegistry()
	}
	registry.Freeze()

	seed := config.Seed
	for seed == 0 {
		seed = rand.Int63()
	}

	sim := &Simulator{
		config:     config,
		registry:   registry,
		sched:      NewScheduler(),
		actorIndex: make(map[string]*Actor, len(config.Actors)),
		metrics:    NewMetrics(),
		seed:       seed,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(sim)
	}

	for _, ac := range config.Actors {
		actor := NewActor(ac.Name, sim.sched, seed, sim.logger)
		if ac.Haste > 0 {
			haste := ac.Haste
			actor.SetHaste(func() float64 { return haste })
		}
		if err := registry.Setup(actor, ac.Effects); err != nil {
			return nil, fmt.Errorf("actor %s: %w", ac.Name, err)
		}
		for _, fn := range sim.actorSetup {
			if err := fn(actor); err != nil {
				return nil, fmt.Errorf("actor %s: %w", ac.Name, err)
			}
		}
		sim.actors = append(sim.actors, actor)
		sim.actorIndex[ac.Name] = actor
	}

	sim.logger.Debug("simulator ready", "seed", seed, "actors", len(sim.actors),
		"content", registry.Len(), "duration", config.Duration())
	return sim, nil
}

// Reset prepares the simulator for the next trial: the clock returns to zero,
// every pending event is dropped, RNG streams are reseeded for the trial and
// every buff and proc returns to its initial state. Metrics are kept.
func (s *Simulator) Reset() {
	s.sched.Reset()
	s.inCombat = false
	for _, a := range s.actors {
		a.Reset(s.trial)
	}
}

// CombatStart runs the combat-start hooks of the simulator and every actor.
func (s *Simulator) CombatStart() {
	s.inCombat = true
	for _, fn := range s.onCombatStart {
		fn(s)
	}
	for _, a := range s.actors {
		a.CombatStart()
	}
}

// CombatEnd runs the combat-end hooks and closes buff uptime.
func (s *Simulator) CombatEnd() {
	for _, a := range s.actors {
		a.CombatEnd()
	}
	for _, fn := range s.onCombatEnd {
		fn(s)
	}
	s.inCombat = false
}

// OnCombatStart registers a simulator-level combat-start hook.
func (s *Simulator) OnCombatStart(fn func(s *Simulator)) {
	s.onCombatStart = append(s.onCombatStart, fn)
}

// OnCombatEnd registers a simulator-level combat-end hook.
func (s *Simulator) OnCombatEnd(fn func(s *Simulator)) {
	s.onCombatEnd = append(s.onCombatEnd, fn)
}

// RunTrial runs one complete trial and folds it into the metrics.
func (s *Simulator) RunTrial() {
	s.Reset()
	s.CombatStart()
	s.sched.AdvanceTo(s.config.Duration())
	s.CombatEnd()
	s.metrics.RecordTrial(s.actors, s.config.Duration(), s.sched.Fired())
	s.logEvent("[trial %d] t=%v events=%d pending=%d",
		s.trial, s.sched.Now(), s.sched.Fired(), s.sched.Len())
	s.trial++
}

// Run executes the configured number of trials. Cancellation is checked
// between trials; the metrics of completed trials are returned either way.
func (s *Simulator) Run(ctx context.Context) (*Metrics, error) {
	start := time.Now()
	for s.trial < s.config.Iterations {
		if err := ctx.Err(); err != nil {
			s.logger.Info("run cancelled", "completed", s.trial, "iterations", s.config.Iterations)
			return s.Metrics(), err
		}
		s.RunTrial()
	}
	s.logger.Info("run complete", "seed", s.seed, "trials", s.trial,
		"simulated", time.Duration(s.metrics.SimulatedSec*float64(time.Second)),
		"elapsed", time.Since(start))
	return s.Metrics(), nil
}

// StepUntil advances the current trial to t without ending combat. It is the
// incremental counterpart of RunTrial for callers that inspect state between
// steps; call Reset and CombatStart first.
func (s *Simulator) StepUntil(t time.Duration) {
	if t < s.sched.Now() {
		t = s.sched.Now()
	}
	s.sched.AdvanceTo(t)
}

// Step advances the current trial by d.
func (s *Simulator) Step(d time.Duration) {
	s.StepUntil(s.sched.Now() + d)
}

// Config returns a copy of the current configuration
func (s *Simulator) Config() SimConfig {
	return s.config
}

// VirtualTime returns the current virtual time
func (s *Simulator) VirtualTime() time.Duration {
	return s.sched.Now()
}

// Metrics returns a copy of current metrics
func (s *Simulator) Metrics() *Metrics {
	return s.metrics.Clone()
}

// Scheduler returns the shared trial scheduler.
func (s *Simulator) Scheduler() *Scheduler {
	return s.sched
}

// Registry returns the (frozen) content registry.
func (s *Simulator) Registry() *Registry {
	return s.registry
}

// Seed returns the resolved run seed.
func (s *Simulator) Seed() int64 {
	return s.seed
}

// Trial returns the index of the next trial to run.
func (s *Simulator) Trial() int {
	return s.trial
}

// InCombat reports whether the current trial is between combat start and end.
func (s *Simulator) InCombat() bool {
	return s.inCombat
}

// Actors returns the actors in configuration order.
func (s *Simulator) Actors() []*Actor {
	return s.actors
}

// Actor looks an actor up by name.
func (s *Simulator) Actor(name string) *Actor {
	return s.actorIndex[name]
}

// IsQueueEmpty returns true if the event queue is empty
func (s *Simulator) IsQueueEmpty() bool {
	return s.sched.IsEmpty()
}

func (s *Simulator) logEvent(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Debug(msg)
	if s.LogEvent != nil {
		s.LogEvent(msg)
	}
}
