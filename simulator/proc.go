package simulator

import "fmt"

// ProcID is the stable index of a proc callback inside its actor's arena.
type ProcID int

// ExecuteFunc is the action a proc runs when it fires.
type ExecuteFunc func(p *ProcCallback, ev *CombatEvent)

// ProcConfig binds a trigger condition, a gating policy and an action.
type ProcConfig struct {
	Name      string
	Predicate TriggerPredicate // nil accepts every event
	Rate      RateConfig

	// Execute runs on fire. When nil, Buff is triggered instead.
	Execute ExecuteFunc
	Buff    *Buff

	// StartInactive leaves the binding deactivated after every reset.
	StartInactive bool
	// IsolatedRNG gives the binding its own stream instead of the actor's.
	IsolatedRNG bool
}

// ProcStats are the per-trial counters of a proc callback.
type ProcStats struct {
	Events   int // qualifying events observed while active
	Attempts int // events that reached the random draw
	Fires    int
}

// ProcCallback observes combat events and fires its action through its rate
// model.
type ProcCallback struct {
	cfg   ProcConfig
	id    ProcID
	actor *Actor
	rate  *RateModel
	rng   *RNG

	active    bool
	boundTo   *Buff
	executing bool
	stats     ProcStats
}

// ID returns the arena index.
func (p *ProcCallback) ID() ProcID { return p.id }

// Name returns the binding name.
func (p *ProcCallback) Name() string { return p.cfg.Name }

// Actor returns the owner.
func (p *ProcCallback) Actor() *Actor { return p.actor }

// Rate exposes the gating model.
func (p *ProcCallback) Rate() *RateModel { return p.rate }

// Buff returns the buff triggered by default, if any.
func (p *ProcCallback) Buff() *Buff { return p.cfg.Buff }

// Stats returns the counters accumulated during the current trial.
func (p *ProcCallback) Stats() ProcStats { return p.stats }

// Active reports whether the binding observes events.
func (p *ProcCallback) Active() bool { return p.active }

// Activate starts observing events.
func (p *ProcCallback) Activate() { p.active = true }

// Deactivate stops observing events.
func (p *ProcCallback) Deactivate() { p.active = false }

// ActivateWithBuff ties the binding to b: it is active exactly while b has
// stacks, from now on and after every reset.
func (p *ProcCallback) ActivateWithBuff(b *Buff) {
	precondition(b != nil, "proc %s: activate with nil buff", p.cfg.Name)
	if p.boundTo != nil {
		panic(fmt.Sprintf("BUG: proc %s: already bound to buff %s", p.cfg.Name, p.boundTo.Name()))
	}
	p.boundTo = b
	p.active = b.Active()
	b.OnStacksChanged(func(_ *Buff, _, newStacks int) {
		p.active = newStacks > 0
	})
}

// Handle offers one combat event to the binding and reports whether it fired.
// The action runs at most once per call.
func (p *ProcCallback) Handle(ev *CombatEvent) bool {
	if !p.active || p.executing {
		return false
	}
	if p.cfg.Predicate != nil && !p.cfg.Predicate(ev) {
		return false
	}
	p.stats.Events++
	before := p.rate.Attempts()
	fired := p.rate.ShouldTrigger(p.actor.Now(), p.actor.Haste(), p.rng)
	p.stats.Attempts += p.rate.Attempts() - before
	if !fired {
		return false
	}
	p.stats.Fires++
	p.actor.debug("proc fire", "proc", p.cfg.Name, "action", ev.Action)

	p.executing = true
	defer func() { p.executing = false }()
	if p.cfg.Execute != nil {
		p.cfg.Execute(p, ev)
	} else {
		p.cfg.Buff.Trigger()
	}
	return true
}

// Reset restores the initial activation state and clears the rate model.
func (p *ProcCallback) Reset() {
	p.rate.Reset()
	p.stats = ProcStats{}
	p.executing = false
	switch {
	case p.boundTo != nil:
		p.active = p.boundTo.Active()
	default:
		p.active = !p.cfg.StartInactive
	}
}
