package effects

import (
	"time"

	"github.com/miretskiy/procsim/simulator"
)

// periodicBuff: a buff applied at combat start that ticks, dispatching one
// periodic combat event per tick. With reapply set it comes back that long
// after every expiry while combat lasts.
//
// Params: interval; optional duration (0 = until combat ends), stacks,
// tick_amount (per stack), tick_on_apply, final_tick, random_first_tick,
// reverse, reapply.
func periodicBuff(ctx *simulator.EffectContext) error {
	interval, err := positiveSeconds(ctx, "interval")
	if err != nil {
		return err
	}
	dur, err := optSeconds(ctx, "duration")
	if err != nil {
		return err
	}
	reapply, err := optSeconds(ctx, "reapply")
	if err != nil {
		return err
	}
	stacks := 1
	if has(ctx, "stacks") {
		if stacks, err = ctx.Stacks("stacks"); err != nil {
			return err
		}
	}
	amount := ctx.CoefficientOr("tick_amount", 0)

	cfg := simulator.BuffConfig{
		Name:            ctx.Effect.Key,
		MaxStacks:       stacks,
		Duration:        dur,
		TickInterval:    interval,
		TickOnApply:     flag(ctx, "tick_on_apply"),
		FinalTick:       flag(ctx, "final_tick"),
		RandomFirstTick: flag(ctx, "random_first_tick"),
		Reverse:         flag(ctx, "reverse"),
		OnTick: func(b *simulator.Buff, _ int) {
			a := b.Actor()
			a.Dispatch(simulator.CombatEvent{
				Source:   a.Name(),
				Target:   a.Name(),
				School:   "periodic",
				Result:   simulator.ResultHit,
				Amount:   amount * float64(b.Stacks()),
				Periodic: true,
				Action:   b.Name(),
			})
		},
	}
	if reapply > 0 {
		cfg.OnExpire = func(b *simulator.Buff, _ time.Duration) {
			a := b.Actor()
			if !a.InCombat() {
				return
			}
			a.Scheduler().Schedule(reapply, func() {
				if a.InCombat() && !b.Active() {
					b.TriggerStacks(stacks)
				}
			}).SetLabel(b.Name() + " reapply")
		}
	}

	b, err := ctx.NewBuff(cfg)
	if err != nil {
		return err
	}
	ctx.Actor.OnCombatStart(func(*simulator.Actor) { b.TriggerStacks(stacks) })
	return nil
}

// jitteredPulse: a buff re-triggered at irregular, Gaussian distributed gaps
// for as long as combat lasts.
//
// Params: interval (mean gap), duration, value; optional stddev.
func jitteredPulse(ctx *simulator.EffectContext) error {
	mean, err := positiveSeconds(ctx, "interval")
	if err != nil {
		return err
	}
	stddev, err := optSeconds(ctx, "stddev")
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
	b, err := ctx.NewBuff(simulator.BuffConfig{Name: key, Duration: dur, DefaultValue: value})
	if err != nil {
		return err
	}
	rng := ctx.Actor.Stream("pulse/" + key)
	gap := simulator.GapFunc(rng, simulator.NewDistribution(simulator.DistGaussian), mean, stddev)

	var pulse *simulator.Event
	ctx.Actor.OnCombatStart(func(a *simulator.Actor) {
		pulse = a.Scheduler().ScheduleRepeating(gap, b.Trigger).SetLabel(key)
	})
	ctx.Actor.OnCombatEnd(func(a *simulator.Actor) {
		a.Scheduler().Cancel(pulse)
		pulse = nil
	})
	return nil
}
