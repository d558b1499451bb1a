// Package effects provides generic, parameter-driven effect templates. A
// content identifier is bound to a template in configuration and supplies the
// numeric coefficients the template reads at setup time.
package effects

import (
	"fmt"
	"sort"
	"time"

	"github.com/miretskiy/procsim/simulator"
)

// Template names.
const (
	StatProc       = "stat_proc"
	RandomStatProc = "random_stat_proc"
	StackingProc   = "stacking_proc"
	PeriodicBuff   = "periodic_buff"
	JitteredPulse  = "jittered_pulse"
	ChainedProc    = "chained_proc"
)

// Template is one reusable effect shape.
type Template struct {
	Name string
	Init simulator.Initializer
	// OnDuplicate handles extra copies sharing one dedup key; nil leaves
	// the shared effect untouched.
	OnDuplicate simulator.Initializer
}

var templates = map[string]Template{
	StatProc:       {Name: StatProc, Init: statProc, OnDuplicate: statDuplicate},
	RandomStatProc: {Name: RandomStatProc, Init: randomStatProc},
	StackingProc:   {Name: StackingProc, Init: stackingProc},
	PeriodicBuff:   {Name: PeriodicBuff, Init: periodicBuff},
	JitteredPulse:  {Name: JitteredPulse, Init: jitteredPulse},
	ChainedProc:    {Name: ChainedProc, Init: chainedProc},
}

// Lookup returns the template registered under name.
func Lookup(name string) (Template, bool) {
	t, ok := templates[name]
	return t, ok
}

// Names returns every template name, sorted.
func Names() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register binds every content definition to its template. Each template is
// also registered under its own name unless a definition already uses it, so
// simple configs can reference templates directly.
func Register(reg *simulator.Registry, content []simulator.ContentConfig) error {
	taken := make(map[string]bool, len(content))
	for _, c := range content {
		t, ok := Lookup(c.Template)
		if !ok {
			return &simulator.SetupError{Content: c.ID, Field: "template",
				Err: fmt.Errorf("%w: template %q", simulator.ErrUnknownContent, c.Template)}
		}
		opts := []simulator.RegisterOption{simulator.WithDuplicateHandler(t.OnDuplicate)}
		if c.DedupKey != "" {
			opts = append(opts, simulator.WithDedupKey(c.DedupKey))
		}
		if err := reg.Register(c.ID, t.Init, opts...); err != nil {
			return err
		}
		taken[c.ID] = true
	}
	for _, name := range Names() {
		if taken[name] {
			continue
		}
		t := templates[name]
		if err := reg.Register(name, t.Init, simulator.WithDuplicateHandler(t.OnDuplicate)); err != nil {
			return err
		}
	}
	return nil
}

// rateConfig reads the gating parameters shared by every proc template:
// rppm (time weighted, or flat with cadence) or chance, plus the optional
// cooldown, modifier, haste_scaled, bad_luck and max_window.
func rateConfig(ctx *simulator.EffectContext) (simulator.RateConfig, error) {
	var rc simulator.RateConfig
	switch {
	case has(ctx, "rppm"):
		rppm, err := ctx.Rate("rppm")
		if err != nil {
			return rc, err
		}
		rc.Kind = simulator.RateTimeWeighted
		rc.RPPM = rppm
		if has(ctx, "cadence") {
			cadence, err := ctx.Seconds("cadence")
			if err != nil {
				return rc, err
			}
			rc.Kind = simulator.RateFlat
			rc.Cadence = cadence
		}
	case has(ctx, "chance"):
		chance, err := ctx.Rate("chance")
		if err != nil {
			return rc, err
		}
		rc.Kind = simulator.RateChance
		rc.Chance = chance
	default:
		return rc, &simulator.SetupError{Content: ctx.Instance.ID, Field: "rppm",
			Err: fmt.Errorf("%w: one of rppm or chance is required", simulator.ErrMissingCoefficient)}
	}

	var err error
	if rc.Cooldown, err = optSeconds(ctx, "cooldown"); err != nil {
		return rc, err
	}
	if rc.MaxAttemptWindow, err = optSeconds(ctx, "max_window"); err != nil {
		return rc, err
	}
	rc.Modifier = ctx.CoefficientOr("modifier", 0)
	rc.HasteScaling = flag(ctx, "haste_scaled")
	rc.BadLuckProtection = flag(ctx, "bad_luck")
	return rc, nil
}

// predicate builds the trigger condition: landed events, optionally narrowed
// by crit_only, periodic_only or direct_only.
func predicate(ctx *simulator.EffectContext) simulator.TriggerPredicate {
	preds := []simulator.TriggerPredicate{simulator.OnLanded()}
	if flag(ctx, "crit_only") {
		preds = append(preds, simulator.OnCrit())
	}
	if flag(ctx, "periodic_only") {
		preds = append(preds, simulator.OnPeriodic())
	}
	if flag(ctx, "direct_only") {
		preds = append(preds, simulator.OnDirect())
	}
	return simulator.AllOf(preds...)
}

// refresh applies the optional extend_cap parameter to cfg.
func refresh(ctx *simulator.EffectContext, cfg *simulator.BuffConfig) {
	if c := ctx.CoefficientOr("extend_cap", 0); c > 0 {
		cfg.Refresh = simulator.RefreshExtend
		cfg.ExtendCap = c
	}
}

func has(ctx *simulator.EffectContext, name string) bool {
	_, ok := ctx.Instance.Params[name]
	return ok
}

func flag(ctx *simulator.EffectContext, name string) bool {
	return ctx.CoefficientOr(name, 0) != 0
}

func optSeconds(ctx *simulator.EffectContext, name string) (time.Duration, error) {
	if !has(ctx, name) {
		return 0, nil
	}
	return ctx.Seconds(name)
}

func positiveSeconds(ctx *simulator.EffectContext, name string) (time.Duration, error) {
	d, err := ctx.Seconds(name)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, &simulator.SetupError{Content: ctx.Instance.ID, Field: name,
			Err: fmt.Errorf("%w: must be > 0", simulator.ErrMalformedDuration)}
	}
	return d, nil
}
