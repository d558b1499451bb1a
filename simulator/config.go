package simulator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AttackConfig describes one stream of combat events an actor produces. The
// attack loop in package integration turns it into scheduled dispatches.
type AttackConfig struct {
	Action      string           `json:"action" yaml:"action"`                                // Originating action identity
	School      string           `json:"school" yaml:"school"`                                // School / category
	IntervalSec float64          `json:"intervalSec" yaml:"interval_sec"`                     // Mean time between events
	Jitter      DistributionType `json:"jitter" yaml:"jitter"`                                // Gap distribution (default fixed)
	SpreadSec   float64          `json:"spreadSec,omitempty" yaml:"spread_sec,omitempty"`     // Uniform half-width or Gaussian stddev
	Amount      float64          `json:"amount" yaml:"amount"`                                // Result amount on a hit
	CritChance  float64          `json:"critChance,omitempty" yaml:"crit_chance,omitempty"`   // Probability of ResultCrit
	MissChance  float64          `json:"missChance,omitempty" yaml:"miss_chance,omitempty"`   // Probability of ResultMiss
	CritScale   float64          `json:"critScale,omitempty" yaml:"crit_scale,omitempty"`     // Amount multiplier on crit (0 = 2)
	Periodic    bool             `json:"periodic,omitempty" yaml:"periodic,omitempty"`        // Events are periodic ticks
	HasteScaled bool             `json:"hasteScaled,omitempty" yaml:"haste_scaled,omitempty"` // Interval shrinks with haste
}

// Interval returns the mean gap as a duration.
func (a AttackConfig) Interval() time.Duration {
	return time.Duration(a.IntervalSec * float64(time.Second))
}

// Spread returns the jitter spread as a duration.
func (a AttackConfig) Spread() time.Duration {
	return time.Duration(a.SpreadSec * float64(time.Second))
}

// ActorConfig describes one simulated actor and the content it carries.
type ActorConfig struct {
	Name    string            `json:"name" yaml:"name"`
	Haste   float64           `json:"haste,omitempty" yaml:"haste,omitempty"` // Haste factor (0 = 1)
	Effects []ContentInstance `json:"effects" yaml:"effects"`
	Attacks []AttackConfig    `json:"attacks" yaml:"attacks"`
	Phases  PhaseConfig       `json:"phases,omitempty" yaml:"phases,omitempty"` // Engaged / idle cycling of the attacks
}

// ContentConfig binds a content identifier to a generic effect template.
// Identifiers sharing a DedupKey collapse into one live effect per actor.
type ContentConfig struct {
	ID       string `json:"id" yaml:"id"`
	Template string `json:"template" yaml:"template"`
	DedupKey string `json:"dedupKey,omitempty" yaml:"dedup_key,omitempty"`
}

// SimConfig holds all run parameters
type SimConfig struct {
	Seed        int64           `json:"seed" yaml:"seed"`                           // Run seed (0 = random seed per run)
	DurationSec float64         `json:"durationSec" yaml:"duration_sec"`            // Combat length of one trial
	Iterations  int             `json:"iterations" yaml:"iterations"`               // Number of independent trials
	Content     []ContentConfig `json:"content,omitempty" yaml:"content,omitempty"` // Content identifiers and their templates
	Actors      []ActorConfig   `json:"actors" yaml:"actors"`
}

// Duration returns the trial length as a duration.
func (c SimConfig) Duration() time.Duration {
	return time.Duration(c.DurationSec * float64(time.Second))
}

// DefaultConfig returns sensible defaults with no actors
func DefaultConfig() SimConfig {
	return SimConfig{
		Seed:        0,     // 0 = use random seed
		DurationSec: 300.0, // 5 minute fight
		Iterations:  100,   // 100 trials
	}
}

// Validate checks if configuration values are reasonable
func (c *SimConfig) Validate() error {
	if c.DurationSec <= 0 {
		return ErrInvalidConfig("durationSec must be > 0")
	}
	if c.Iterations < 1 {
		return ErrInvalidConfig("iterations must be >= 1")
	}
	if len(c.Actors) == 0 {
		return ErrInvalidConfig("at least one actor is required")
	}
	ids := make(map[string]bool, len(c.Content))
	for i, ct := range c.Content {
		switch {
		case strings.TrimSpace(ct.ID) == "":
			return ErrInvalidConfig(fmt.Sprintf("content[%d].id is required", i))
		case strings.TrimSpace(ct.Template) == "":
			return ErrInvalidConfig(fmt.Sprintf("content %s: template is required", ct.ID))
		case ids[ct.ID]:
			return ErrInvalidConfig(fmt.Sprintf("duplicate content id %q", ct.ID))
		}
		ids[ct.ID] = true
	}
	seen := make(map[string]bool, len(c.Actors))
	for i, a := range c.Actors {
		if strings.TrimSpace(a.Name) == "" {
			return ErrInvalidConfig(fmt.Sprintf("actors[%d].name is required", i))
		}
		if seen[a.Name] {
			return ErrInvalidConfig(fmt.Sprintf("duplicate actor name %q", a.Name))
		}
		seen[a.Name] = true
		if a.Haste < 0 {
			return ErrInvalidConfig(fmt.Sprintf("actor %s: haste must be >= 0", a.Name))
		}
		if err := a.Phases.validate(); err != nil {
			return ErrInvalidConfig(fmt.Sprintf("actor %s: phases: %s", a.Name, err))
		}
		for j, e := range a.Effects {
			if strings.TrimSpace(e.ID) == "" {
				return ErrInvalidConfig(fmt.Sprintf("actor %s: effects[%d].id is required", a.Name, j))
			}
		}
		for j, atk := range a.Attacks {
			if err := atk.validate(); err != nil {
				return ErrInvalidConfig(fmt.Sprintf("actor %s: attacks[%d]: %s", a.Name, j, err))
			}
		}
	}
	return nil
}

func (a AttackConfig) validate() error {
	switch {
	case a.Action == "":
		return fmt.Errorf("action is required")
	case a.IntervalSec <= 0:
		return fmt.Errorf("intervalSec must be > 0")
	case a.SpreadSec < 0:
		return fmt.Errorf("spreadSec must be >= 0")
	case a.CritChance < 0 || a.CritChance > 1:
		return fmt.Errorf("critChance must be between 0 and 1")
	case a.MissChance < 0 || a.MissChance > 1:
		return fmt.Errorf("missChance must be between 0 and 1")
	case a.CritChance+a.MissChance > 1:
		return fmt.Errorf("critChance + missChance must be <= 1")
	case a.CritScale < 0:
		return fmt.Errorf("critScale must be >= 0")
	}
	return nil
}

// LoadConfig reads a configuration file on top of DefaultConfig. Files ending
// in .json are parsed as JSON, everything else as YAML.
func LoadConfig(path string) (SimConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// envOverrides are the run knobs that may be set from the environment.
type envOverrides struct {
	Seed        *int64   `env:"PROCSIM_SEED"`
	Iterations  *int     `env:"PROCSIM_ITERATIONS"`
	DurationSec *float64 `env:"PROCSIM_DURATION_SEC"`
}

// ApplyEnv overlays PROCSIM_SEED, PROCSIM_ITERATIONS and PROCSIM_DURATION_SEC
// onto cfg. Unset variables leave cfg untouched.
func ApplyEnv(cfg *SimConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	if o.Iterations != nil {
		cfg.Iterations = *o.Iterations
	}
	if o.DurationSec != nil {
		cfg.DurationSec = *o.DurationSec
	}
	return nil
}
