// Package integration stands in for the damage-resolution collaborator: it
// turns configured attack cadences into combat events and wires a complete
// simulator from a configuration.
package integration

import (
	"fmt"
	"time"

	"github.com/miretskiy/procsim/effects"
	"github.com/miretskiy/procsim/simulator"
)

// DefaultTarget is the target named on generated combat events.
const DefaultTarget = "target"

// AttackStats counts the outcomes of one attack loop during a trial.
type AttackStats struct {
	Swings int
	Hits   int
	Crits  int
	Misses int
	Damage float64
}

// AttackLoop produces one stream of combat events for an actor while it is in
// combat. Gaps follow the configured jitter distribution and shrink with
// haste when the attack is haste scaled.
type AttackLoop struct {
	actor  *simulator.Actor
	cfg    simulator.AttackConfig
	rng    *simulator.RNG
	gap    func() time.Duration
	event  *simulator.Event
	phases *simulator.PhaseModel
	stats  AttackStats
}

// NewAttackLoop attaches an attack loop to actor. The loop starts and stops
// with the actor's combat hooks and draws from its own stream.
func NewAttackLoop(actor *simulator.Actor, cfg simulator.AttackConfig) (*AttackLoop, error) {
	if cfg.Action == "" {
		return nil, fmt.Errorf("attack loop: action is required")
	}
	if cfg.Interval() <= 0 {
		return nil, fmt.Errorf("attack loop %s: interval must be positive, got %v", cfg.Action, cfg.Interval())
	}
	l := &AttackLoop{
		actor: actor,
		cfg:   cfg,
		rng:   actor.Stream("attack/" + cfg.Action),
	}
	base := simulator.GapFunc(l.rng, simulator.NewDistribution(cfg.Jitter), cfg.Interval(), cfg.Spread())
	l.gap = func() time.Duration {
		g := base()
		if cfg.HasteScaled {
			if h := actor.Haste(); h > 0 {
				g = time.Duration(float64(g) / h)
			}
		}
		return max(g, time.Millisecond)
	}

	actor.OnCombatStart(func(*simulator.Actor) { l.Start() })
	actor.OnCombatEnd(func(*simulator.Actor) { l.Stop() })
	actor.OnTrialReset(func(*simulator.Actor) {
		l.event = nil
		l.stats = AttackStats{}
	})
	return l, nil
}

// FollowPhases pauses the loop while p is idle and resumes it when p
// re-engages during combat.
func (l *AttackLoop) FollowPhases(p *simulator.PhaseModel) {
	l.phases = p
	p.OnChange(func(engaged bool) {
		if !engaged {
			l.Stop()
			return
		}
		if l.actor.InCombat() {
			l.Start()
		}
	})
}

// Start schedules the loop. Starting a running loop, or one whose phases are
// idle, is a no-op.
func (l *AttackLoop) Start() {
	if l.event.Pending() || (l.phases != nil && !l.phases.Engaged()) {
		return
	}
	l.event = l.actor.Scheduler().ScheduleRepeating(l.gap, l.swing).SetLabel(l.actor.Name() + "/" + l.cfg.Action)
}

// Stop cancels the loop.
func (l *AttackLoop) Stop() {
	l.actor.Scheduler().Cancel(l.event)
	l.event = nil
}

// Running reports whether the loop is scheduled.
func (l *AttackLoop) Running() bool { return l.event.Pending() }

// Stats returns the outcome counters of the current trial.
func (l *AttackLoop) Stats() AttackStats { return l.stats }

func (l *AttackLoop) swing() {
	result, amount := l.resolve()
	l.stats.Swings++
	switch result {
	case simulator.ResultMiss:
		l.stats.Misses++
	case simulator.ResultCrit:
		l.stats.Crits++
	default:
		l.stats.Hits++
	}
	l.stats.Damage += amount
	l.actor.Dispatch(simulator.CombatEvent{
		Source:   l.actor.Name(),
		Target:   DefaultTarget,
		School:   l.cfg.School,
		Result:   result,
		Amount:   amount,
		Periodic: l.cfg.Periodic,
		Action:   l.cfg.Action,
	})
}

// resolve rolls a single-table attack: miss, then crit, else hit.
func (l *AttackLoop) resolve() (simulator.CombatResult, float64) {
	roll := l.rng.Float64()
	switch {
	case roll < l.cfg.MissChance:
		return simulator.ResultMiss, 0
	case roll < l.cfg.MissChance+l.cfg.CritChance:
		scale := l.cfg.CritScale
		if scale == 0 {
			scale = 2
		}
		return simulator.ResultCrit, l.cfg.Amount * scale
	default:
		return simulator.ResultHit, l.cfg.Amount
	}
}

// WithAttacks installs the attack loops configured for every actor, paced by
// the actor's engaged and idle phases when those are enabled.
func WithAttacks(cfg simulator.SimConfig) simulator.Option {
	byActor := make(map[string]simulator.ActorConfig, len(cfg.Actors))
	for _, ac := range cfg.Actors {
		byActor[ac.Name] = ac
	}
	return simulator.WithActorSetup(func(a *simulator.Actor) error {
		ac := byActor[a.Name()]
		var phases *simulator.PhaseModel
		if ac.Phases.Enabled() {
			var err error
			if phases, err = NewPhases(a, ac.Phases); err != nil {
				return err
			}
		}
		for _, atk := range ac.Attacks {
			l, err := NewAttackLoop(a, atk)
			if err != nil {
				return err
			}
			if phases != nil {
				l.FollowPhases(phases)
			}
		}
		return nil
	})
}

// NewPhases attaches a phase model to actor that runs while it is in combat.
// Register it before any attack loop that follows it.
func NewPhases(actor *simulator.Actor, cfg simulator.PhaseConfig) (*simulator.PhaseModel, error) {
	p, err := simulator.NewPhaseModel(actor.Scheduler(), actor.Stream("phases"), cfg)
	if err != nil {
		return nil, err
	}
	actor.OnCombatStart(func(*simulator.Actor) { p.Start() })
	actor.OnCombatEnd(func(*simulator.Actor) { p.Stop() })
	actor.OnTrialReset(func(*simulator.Actor) { p.Reset() })
	return p, nil
}

// NewSimulator builds a registry from the configured content and the generic
// effect templates, then a simulator with every attack loop installed.
func NewSimulator(cfg simulator.SimConfig, opts ...simulator.Option) (*simulator.Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg := simulator.NewRegistry()
	if err := effects.Register(reg, cfg.Content); err != nil {
		return nil, fmt.Errorf("register content: %w", err)
	}
	opts = append(opts, WithAttacks(cfg))
	return simulator.NewSimulator(cfg, reg, opts...)
}
