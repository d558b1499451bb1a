package simulator

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

// RateKind selects how a proc converts its rate into a per-attempt probability
type RateKind int

const (
	// RateChance uses a fixed probability per qualifying event.
	RateChance RateKind = iota
	// RateFlat converts RPPM into a constant probability for attempts arriving
	// at a known cadence: p = rppm × modifier × cadence / 60s.
	RateFlat
	// RateTimeWeighted scales the probability with the time since the previous
	// attempt: p = rppm × modifier × Δt / 60s, capped at 1.
	RateTimeWeighted
)

// String returns the string representation of RateKind
func (k RateKind) String() string {
	switch k {
	case RateChance:
		return "chance"
	case RateFlat:
		return "flat"
	case RateTimeWeighted:
		return "rppm"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseRateKind parses a string into RateKind
func ParseRateKind(s string) (RateKind, error) {
	switch s {
	case "chance":
		return RateChance, nil
	case "flat":
		return RateFlat, nil
	case "rppm", "time_weighted":
		return RateTimeWeighted, nil
	default:
		return RateChance, fmt.Errorf("invalid rate kind: %s (must be 'chance', 'flat' or 'rppm')", s)
	}
}

// MarshalJSON implements json.Marshaler for RateKind
func (k RateKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler for RateKind
func (k *RateKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRateKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for RateKind
func (k *RateKind) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseRateKind(node.Value)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

const (
	// DefaultMaxAttemptWindow is the usual cap on Δt for time-weighted procs.
	DefaultMaxAttemptWindow = 3500 * time.Millisecond
	// badLuckWindowCap caps the time-since-last-proc fed to bad luck protection.
	badLuckWindowCap = 1000 * time.Second
)

// RateConfig is the resolved gating data for a proc
type RateConfig struct {
	Kind   RateKind
	RPPM   float64 // procs per 60s for RateFlat / RateTimeWeighted
	Chance float64 // probability per attempt for RateChance

	// Cadence is the nominal attempt interval assumed by RateFlat.
	Cadence time.Duration

	// Modifier multiplies the rate (0 means 1). HasteScaling additionally
	// multiplies by the haste factor supplied on each attempt.
	Modifier     float64
	HasteScaling bool

	// MaxAttemptWindow caps Δt for RateTimeWeighted (0 = uncapped).
	MaxAttemptWindow time.Duration
	// BadLuckProtection raises the probability after long dry spells.
	BadLuckProtection bool

	// Cooldown is the internal cooldown between triggers (0 = none).
	Cooldown time.Duration
}

// Validate checks the rate for setup-time errors
func (c RateConfig) Validate() error {
	switch c.Kind {
	case RateChance:
		if c.Chance <= 0 || c.Chance > 1 || math.IsNaN(c.Chance) {
			return setupErr("chance", ErrInvalidRate, "chance %v must be in (0, 1]", c.Chance)
		}
	case RateFlat, RateTimeWeighted:
		if c.RPPM <= 0 || math.IsNaN(c.RPPM) || math.IsInf(c.RPPM, 0) {
			return setupErr("rppm", ErrInvalidRate, "rppm %v must be > 0", c.RPPM)
		}
		if c.Kind == RateFlat && c.Cadence <= 0 {
			return setupErr("cadence", ErrMalformedDuration, "flat rate needs a positive cadence, got %v", c.Cadence)
		}
	default:
		return setupErr("kind", ErrInvalidRate, "unknown rate kind %d", int(c.Kind))
	}
	if c.Modifier < 0 {
		return setupErr("modifier", ErrInvalidRate, "modifier %v must be >= 0", c.Modifier)
	}
	if c.Cooldown < 0 {
		return setupErr("cooldown", ErrMalformedDuration, "cooldown %v must be >= 0", c.Cooldown)
	}
	if c.MaxAttemptWindow < 0 {
		return setupErr("max_attempt_window", ErrMalformedDuration, "window %v must be >= 0", c.MaxAttemptWindow)
	}
	return nil
}

// RateModel turns qualifying events into trigger decisions.
type RateModel struct {
	cfg      RateConfig
	modifier float64
	cooldown Cooldown

	lastAttempt time.Duration
	lastTrigger time.Duration
	attempts    int
	triggers    int
}

// NewRateModel validates cfg and returns a ready model.
func NewRateModel(cfg RateConfig) (*RateModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &RateModel{cfg: cfg}
	m.Reset()
	return m, nil
}

// Config returns the rate configuration.
func (m *RateModel) Config() RateConfig { return m.cfg }

// SetModifier replaces the dynamic rate multiplier.
func (m *RateModel) SetModifier(mod float64) {
	precondition(mod >= 0, "negative rate modifier %v", mod)
	m.modifier = mod
}

// Modifier returns the dynamic rate multiplier.
func (m *RateModel) Modifier() float64 { return m.modifier }

// Cooldown exposes the internal cooldown state.
func (m *RateModel) Cooldown() *Cooldown { return &m.cooldown }

// Attempts returns the number of attempts that reached a random draw.
func (m *RateModel) Attempts() int { return m.attempts }

// Triggers returns the number of successful attempts.
func (m *RateModel) Triggers() int { return m.triggers }

// LastTrigger returns the time of the most recent success.
func (m *RateModel) LastTrigger() time.Duration { return m.lastTrigger }

// EffectiveRate returns the procs-per-minute after modifiers for the given haste.
func (m *RateModel) EffectiveRate(haste float64) float64 {
	rate := m.cfg.RPPM * m.modifier
	if m.cfg.HasteScaling && haste > 0 {
		rate *= haste
	}
	return rate
}

// Probability returns the trigger probability of an attempt arriving
// sinceAttempt after the previous one and sinceTrigger after the last success.
func (m *RateModel) Probability(sinceAttempt, sinceTrigger time.Duration, haste float64) float64 {
	var p float64
	switch m.cfg.Kind {
	case RateChance:
		p = m.cfg.Chance * m.modifier
	case RateFlat:
		p = m.EffectiveRate(haste) * m.cfg.Cadence.Seconds() / 60
	case RateTimeWeighted:
		elapsed := sinceAttempt
		if m.cfg.MaxAttemptWindow > 0 && elapsed > m.cfg.MaxAttemptWindow {
			elapsed = m.cfg.MaxAttemptWindow
		}
		rate := m.EffectiveRate(haste)
		p = rate * elapsed.Seconds() / 60
		if m.cfg.BadLuckProtection && rate > 0 {
			dry := sinceTrigger
			if dry > badLuckWindowCap {
				dry = badLuckWindowCap
			}
			expected := 60 / rate
			p *= math.Max(1, 1+(dry.Seconds()/expected-1.5)*3)
		}
	}
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	return p
}

// ShouldTrigger decides one attempt at time now. Attempts inside the internal
// cooldown are rejected outright: they consume no random draw and do not move
// the attempt window, so the first attempt after the cooldown is weighted by
// the full gap.
func (m *RateModel) ShouldTrigger(now time.Duration, haste float64, rng *RNG) bool {
	if !m.cooldown.Ready(now) {
		return false
	}
	p := m.Probability(now-m.lastAttempt, now-m.lastTrigger, haste)
	m.lastAttempt = now
	m.attempts++
	if !rng.Roll(p) {
		return false
	}
	m.triggers++
	m.lastTrigger = now
	if m.cfg.Cooldown > 0 {
		m.cooldown.Start(now, m.cfg.Cooldown)
	}
	return true
}

// Reset returns the model to its initial state for a new trial.
func (m *RateModel) Reset() {
	m.modifier = m.cfg.Modifier
	if m.modifier == 0 {
		m.modifier = 1
	}
	m.cooldown.Reset()
	m.lastAttempt = 0
	m.lastTrigger = 0
	m.attempts = 0
	m.triggers = 0
}
