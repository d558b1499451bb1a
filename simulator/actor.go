package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Actor is one simulated combatant. It is the arena that owns every buff,
// proc callback and effect instance created for it; cross references between
// them are arena indices.
type Actor struct {
	name    string
	sched   *Scheduler
	logger  *slog.Logger
	runSeed int64
	trial   int

	rng     *RNG
	streams map[string]*RNG

	buffs     []*Buff
	buffIndex map[string]BuffID
	procs     []*ProcCallback
	procIndex map[string]ProcID
	effects   map[string]*Effect
	effectSeq []*Effect

	haste func() float64

	onCombatStart []func(a *Actor)
	onCombatEnd   []func(a *Actor)
	onReset       []func(a *Actor)

	inCombat    bool
	dispatching bool
	scratch     []*ProcCallback
	dispatched  int
	deferred    int
}

// NewActor creates an actor bound to a scheduler. The RNG stream is derived
// from runSeed and the actor name.
func NewActor(name string, sched *Scheduler, runSeed int64, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		name:      name,
		sched:     sched,
		logger:    logger,
		runSeed:   runSeed,
		rng:       NewStream(runSeed, 0, name),
		streams:   make(map[string]*RNG),
		buffIndex: make(map[string]BuffID),
		procIndex: make(map[string]ProcID),
		effects:   make(map[string]*Effect),
		haste:     func() float64 { return 1 },
	}
}

// Name returns the actor name.
func (a *Actor) Name() string { return a.name }

// Now returns the current simulation time.
func (a *Actor) Now() time.Duration { return a.sched.Now() }

// Scheduler returns the trial scheduler.
func (a *Actor) Scheduler() *Scheduler { return a.sched }

// RNG returns the actor's shared random stream.
func (a *Actor) RNG() *RNG { return a.rng }

// Stream returns an isolated random stream for identity, creating it on first
// use. Isolated streams are reseeded with the actor on every reset.
func (a *Actor) Stream(identity string) *RNG {
	if g, ok := a.streams[identity]; ok {
		return g
	}
	g := NewStream(a.runSeed, a.trial, a.name+"/"+identity)
	a.streams[identity] = g
	return g
}

// Haste returns the current haste factor (1 = no haste).
func (a *Actor) Haste() float64 { return a.haste() }

// SetHaste installs the haste source consulted by haste-scaled procs.
func (a *Actor) SetHaste(fn func() float64) {
	precondition(fn != nil, "actor %s: nil haste source", a.name)
	a.haste = fn
}

// InCombat reports whether combat has started and not yet ended.
func (a *Actor) InCombat() bool { return a.inCombat }

// Trial returns the index of the trial the actor was last reset for.
func (a *Actor) Trial() int { return a.trial }

// NewBuff registers a buff in the arena. Names are unique per actor.
func (a *Actor) NewBuff(cfg BuffConfig) (*Buff, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if _, dup := a.buffIndex[cfg.Name]; dup {
		return nil, setupErr("name", ErrDuplicateContent, "actor %s already has buff %s", a.name, cfg.Name)
	}
	b := &Buff{cfg: cfg, id: BuffID(len(a.buffs)), actor: a, value: cfg.DefaultValue}
	a.buffs = append(a.buffs, b)
	a.buffIndex[cfg.Name] = b.id
	return b, nil
}

// Buff returns the buff with the given arena index.
func (a *Actor) Buff(id BuffID) *Buff {
	if id < 0 || int(id) >= len(a.buffs) {
		return nil
	}
	return a.buffs[id]
}

// BuffByName looks a buff up by name.
func (a *Actor) BuffByName(name string) *Buff {
	id, ok := a.buffIndex[name]
	if !ok {
		return nil
	}
	return a.buffs[id]
}

// Buffs returns the buffs in creation order.
func (a *Actor) Buffs() []*Buff { return a.buffs }

// buff resolves a continuation: it returns nil once the buff has moved to a
// later generation.
func (a *Actor) buff(id BuffID, epoch uint64) *Buff {
	b := a.Buff(id)
	if b == nil || b.epoch != epoch {
		return nil
	}
	return b
}

// NewProc registers a proc callback in the arena.
func (a *Actor) NewProc(cfg ProcConfig) (*ProcCallback, error) {
	if cfg.Name == "" {
		return nil, setupErr("name", ErrInvalidRate, "proc name is required")
	}
	if _, dup := a.procIndex[cfg.Name]; dup {
		return nil, setupErr("name", ErrDuplicateContent, "actor %s already has proc %s", a.name, cfg.Name)
	}
	if cfg.Execute == nil && cfg.Buff == nil {
		return nil, setupErr("execute", ErrMissingCoefficient, "proc %s has neither an action nor a buff", cfg.Name)
	}
	rate, err := NewRateModel(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("proc %s: %w", cfg.Name, err)
	}
	p := &ProcCallback{cfg: cfg, id: ProcID(len(a.procs)), actor: a, rate: rate, rng: a.rng}
	if cfg.IsolatedRNG {
		p.rng = a.Stream("proc/" + cfg.Name)
	}
	p.active = !cfg.StartInactive
	a.procs = append(a.procs, p)
	a.procIndex[cfg.Name] = p.id
	return p, nil
}

// Proc returns the proc callback with the given arena index.
func (a *Actor) Proc(id ProcID) *ProcCallback {
	if id < 0 || int(id) >= len(a.procs) {
		return nil
	}
	return a.procs[id]
}

// ProcByName looks a proc callback up by name.
func (a *Actor) ProcByName(name string) *ProcCallback {
	id, ok := a.procIndex[name]
	if !ok {
		return nil
	}
	return a.procs[id]
}

// Procs returns the proc callbacks in creation order.
func (a *Actor) Procs() []*ProcCallback { return a.procs }

// Effect returns the live effect instance for a dedup key.
func (a *Actor) Effect(key string) *Effect { return a.effects[key] }

// Effects returns the live effect instances in setup order.
func (a *Actor) Effects() []*Effect { return a.effectSeq }

// Dispatch offers a combat event to every proc callback that is active when
// the dispatch begins, in registration order, and returns how many fired.
//
// An event dispatched from inside another dispatch (a proc action producing a
// new combat event) is queued at the current instant instead of recursing; it
// is then delivered after everything already scheduled for this instant.
func (a *Actor) Dispatch(ev CombatEvent) int {
	ev.Time = a.Now()
	if a.dispatching {
		a.deferred++
		a.sched.Schedule(0, func() { a.Dispatch(ev) })
		return 0
	}
	a.dispatching = true
	defer func() { a.dispatching = false }()
	a.dispatched++

	a.scratch = a.scratch[:0]
	for _, p := range a.procs {
		if p.active {
			a.scratch = append(a.scratch, p)
		}
	}
	fired := 0
	for _, p := range a.scratch {
		if p.Handle(&ev) {
			fired++
		}
	}
	return fired
}

// Dispatched returns how many events were delivered since the last reset;
// Deferred how many of those were queued from inside another dispatch.
func (a *Actor) Dispatched() int { return a.dispatched }

func (a *Actor) Deferred() int { return a.deferred }

// OnCombatStart registers a hook run when combat begins.
func (a *Actor) OnCombatStart(fn func(a *Actor)) { a.onCombatStart = append(a.onCombatStart, fn) }

// OnCombatEnd registers a hook run when combat ends.
func (a *Actor) OnCombatEnd(fn func(a *Actor)) { a.onCombatEnd = append(a.onCombatEnd, fn) }

// OnTrialReset registers a hook run after every reset.
func (a *Actor) OnTrialReset(fn func(a *Actor)) { a.onReset = append(a.onReset, fn) }

// CombatStart marks the actor in combat and runs the combat-start hooks.
func (a *Actor) CombatStart() {
	a.inCombat = true
	for _, fn := range a.onCombatStart {
		fn(a)
	}
}

// CombatEnd runs the combat-end hooks and closes uptime accounting.
func (a *Actor) CombatEnd() {
	for _, fn := range a.onCombatEnd {
		fn(a)
	}
	now := a.Now()
	for _, b := range a.buffs {
		b.closeUptime(now)
	}
	a.inCombat = false
}

// Reset prepares the actor for trial. The scheduler must already be reset.
// Structure (buffs, procs, effects, hooks) is kept; only mutable state is
// cleared and every random stream is reseeded for the trial.
func (a *Actor) Reset(trial int) {
	a.trial = trial
	a.rng.Reseed(StreamSeed(a.runSeed, trial, a.name))
	for identity, g := range a.streams {
		g.Reseed(StreamSeed(a.runSeed, trial, a.name+"/"+identity))
	}
	for _, b := range a.buffs {
		b.Reset()
	}
	for _, p := range a.procs {
		p.Reset()
	}
	a.inCombat = false
	a.dispatching = false
	a.dispatched = 0
	a.deferred = 0
	for _, fn := range a.onReset {
		fn(a)
	}
}

func (a *Actor) debug(msg string, args ...any) {
	if !a.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := append([]any{"actor", a.name, "t", a.Now()}, args...)
	a.logger.Debug(msg, attrs...)
}
