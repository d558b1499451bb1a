package simulator

import (
	"fmt"
	"time"
)

// PhaseConfig describes alternating engaged and idle phases, such as a boss
// that periodically forces the actor to move away. Engaged phases follow an
// Erlang distribution, idle phases an exponential one.
type PhaseConfig struct {
	EngagedMeanSec float64 `json:"engagedMeanSec" yaml:"engaged_mean_sec"`      // Mean engaged duration
	IdleMeanSec    float64 `json:"idleMeanSec" yaml:"idle_mean_sec"`            // Mean idle duration (0 = always engaged)
	ErlangK        int     `json:"erlangK,omitempty" yaml:"erlang_k,omitempty"` // Erlang shape for engaged phases (0 = 1)
}

// Enabled reports whether the actor ever leaves the engaged phase.
func (c PhaseConfig) Enabled() bool { return c.IdleMeanSec > 0 }

func (c PhaseConfig) validate() error {
	switch {
	case c.IdleMeanSec < 0:
		return fmt.Errorf("idleMeanSec must be >= 0")
	case c.Enabled() && c.EngagedMeanSec <= 0:
		return fmt.Errorf("engagedMeanSec must be > 0 when idle phases are enabled")
	case c.ErlangK < 0:
		return fmt.Errorf("erlangK must be >= 0")
	}
	return nil
}

// PhaseModel is an ON/OFF state machine driven by the scheduler.
type PhaseModel struct {
	cfg      PhaseConfig
	sched    *Scheduler
	rng      *RNG
	event    *Event
	engaged  bool
	switches int

	idle      time.Duration
	idleSince time.Duration

	onChange []func(engaged bool)
}

// NewPhaseModel creates a stopped phase model.
func NewPhaseModel(sched *Scheduler, rng *RNG, cfg PhaseConfig) (*PhaseModel, error) {
	if err := cfg.validate(); err != nil {
		return nil, &SetupError{Field: "phases", Err: fmt.Errorf("%w: %v", ErrMalformedDuration, err)}
	}
	return &PhaseModel{cfg: cfg, sched: sched, rng: rng}, nil
}

// OnChange registers fn to run on every transition.
func (p *PhaseModel) OnChange(fn func(engaged bool)) {
	p.onChange = append(p.onChange, fn)
}

// Start enters the engaged phase and schedules the first transition.
// Starting a running model is a no-op.
func (p *PhaseModel) Start() {
	if p.event.Pending() {
		return
	}
	p.engaged = true
	if !p.cfg.Enabled() {
		return
	}
	p.event = p.sched.ScheduleRepeating(p.nextPhase, p.toggle).SetLabel("phases")
}

// Stop cancels pending transitions and closes idle accounting.
func (p *PhaseModel) Stop() {
	p.sched.Cancel(p.event)
	p.event = nil
	if !p.engaged {
		p.idle += p.sched.Now() - p.idleSince
	}
	p.engaged = false
}

// Reset returns the model to its stopped initial state.
func (p *PhaseModel) Reset() {
	p.event = nil
	p.engaged = false
	p.switches = 0
	p.idle = 0
	p.idleSince = 0
}

// Engaged reports whether the actor is in an engaged phase.
func (p *PhaseModel) Engaged() bool { return p.engaged }

// Switches returns the number of transitions since the last reset.
func (p *PhaseModel) Switches() int { return p.switches }

// IdleTime returns the total idle time, including a phase still in progress.
func (p *PhaseModel) IdleTime() time.Duration {
	if p.event.Pending() && !p.engaged {
		return p.idle + p.sched.Now() - p.idleSince
	}
	return p.idle
}

func (p *PhaseModel) toggle() {
	now := p.sched.Now()
	p.engaged = !p.engaged
	p.switches++
	if p.engaged {
		p.idle += now - p.idleSince
	} else {
		p.idleSince = now
	}
	for _, fn := range p.onChange {
		fn(p.engaged)
	}
}

// nextPhase samples the length of the phase just entered.
func (p *PhaseModel) nextPhase() time.Duration {
	var sec float64
	if p.engaged {
		sec = erlangSample(p.rng, max(p.cfg.ErlangK, 1), p.cfg.EngagedMeanSec)
	} else {
		sec = p.rng.Exponential(p.cfg.IdleMeanSec)
	}
	return max(time.Duration(sec*float64(time.Second)), time.Millisecond)
}

// erlangSample draws an Erlang(k) variable with the given mean: the sum of k
// exponentials with mean mean/k.
func erlangSample(rng *RNG, k int, mean float64) float64 {
	if mean <= 0 || k <= 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += rng.Exponential(mean / float64(k))
	}
	return sum
}
