package effects

import (
	"github.com/miretskiy/procsim/simulator"
)

// stackingProc: a proc that adds one stack per fire. With burst_duration set,
// reaching the maximum consumes the stacks and grants a burst buff.
//
// Params: rppm|chance, duration, max_stacks; optional value (per stack),
// async, extend_cap, burst_duration and burst_value.
func stackingProc(ctx *simulator.EffectContext) error {
	rate, err := rateConfig(ctx)
	if err != nil {
		return err
	}
	dur, err := positiveSeconds(ctx, "duration")
	if err != nil {
		return err
	}
	maxStacks, err := ctx.Stacks("max_stacks")
	if err != nil {
		return err
	}

	cfg := simulator.BuffConfig{
		Name:         ctx.Effect.Key,
		MaxStacks:    maxStacks,
		Duration:     dur,
		DefaultValue: ctx.CoefficientOr("value", 0),
	}
	refresh(ctx, &cfg)
	if flag(ctx, "async") {
		cfg.StackBehavior = simulator.StackAsynchronous
	}

	if has(ctx, "burst_duration") {
		burstDur, err := positiveSeconds(ctx, "burst_duration")
		if err != nil {
			return err
		}
		burstValue, err := ctx.Coefficient("burst_value")
		if err != nil {
			return err
		}
		burst, err := ctx.NewBuff(simulator.BuffConfig{
			Name:         ctx.Effect.Key + "/burst",
			Duration:     burstDur,
			DefaultValue: burstValue,
		})
		if err != nil {
			return err
		}
		cfg.ExpireAtMaxStack = true
		cfg.OnStackChange = func(b *simulator.Buff, _, newStacks int) {
			if newStacks == b.MaxStacks() {
				burst.Trigger()
			}
		}
	}

	stacks, err := ctx.NewBuff(cfg)
	if err != nil {
		return err
	}
	_, err = ctx.NewProc(simulator.ProcConfig{
		Name:      ctx.Effect.Key,
		Predicate: predicate(ctx),
		Rate:      rate,
		Buff:      stacks,
	})
	return err
}
