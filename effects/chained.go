package effects

import (
	"github.com/miretskiy/procsim/simulator"
)

// chainedProc: an opener proc grants a short window; while the window is up
// a follow-up proc may fire, granting the payoff buff and closing the window.
//
// Params: rppm|chance (opener), window, followup_chance, duration, value.
func chainedProc(ctx *simulator.EffectContext) error {
	rate, err := rateConfig(ctx)
	if err != nil {
		return err
	}
	window, err := positiveSeconds(ctx, "window")
	if err != nil {
		return err
	}
	followChance, err := ctx.Rate("followup_chance")
	if err != nil {
		return err
	}
	dur, err := positiveSeconds(ctx, "duration")
	if err != nil {
		return err
	}
	value, err := ctx.Coefficient("value")
	if err != nil {
		return err
	}

	key := ctx.Effect.Key
	unlock, err := ctx.NewBuff(simulator.BuffConfig{Name: key + "/window", Duration: window})
	if err != nil {
		return err
	}
	payoff, err := ctx.NewBuff(simulator.BuffConfig{Name: key, Duration: dur, DefaultValue: value})
	if err != nil {
		return err
	}

	trig := predicate(ctx)
	if _, err := ctx.NewProc(simulator.ProcConfig{
		Name:      key + "/opener",
		Predicate: trig,
		Rate:      rate,
		Buff:      unlock,
	}); err != nil {
		return err
	}
	follow, err := ctx.NewProc(simulator.ProcConfig{
		Name:      key,
		Predicate: trig,
		Rate:      simulator.RateConfig{Kind: simulator.RateChance, Chance: followChance},
		Execute: func(*simulator.ProcCallback, *simulator.CombatEvent) {
			payoff.Trigger()
			unlock.Expire()
		},
	})
	if err != nil {
		return err
	}
	follow.ActivateWithBuff(unlock)
	return nil
}
