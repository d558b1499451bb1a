package effects

import (
	"fmt"

	"github.com/miretskiy/procsim/simulator"
)

// statState is shared by every copy of a stat proc. Extra copies add their
// value to the one granted on trigger.
type statState struct {
	value float64
}

// statProc: a proc that grants a timed stat buff.
//
// Params: rppm|chance, duration, value; optional extend_cap and the shared
// rate and predicate flags.
func statProc(ctx *simulator.EffectContext) error {
	rate, err := rateConfig(ctx)
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

	cfg := simulator.BuffConfig{Name: ctx.Effect.Key, Duration: dur, DefaultValue: value}
	refresh(ctx, &cfg)
	b, err := ctx.NewBuff(cfg)
	if err != nil {
		return err
	}
	st := &statState{value: value}
	ctx.Effect.State = st

	_, err = ctx.NewProc(simulator.ProcConfig{
		Name:      ctx.Effect.Key,
		Predicate: predicate(ctx),
		Rate:      rate,
		Execute: func(*simulator.ProcCallback, *simulator.CombatEvent) {
			b.TriggerWith(1, st.value, 0)
		},
	})
	return err
}

func statDuplicate(ctx *simulator.EffectContext) error {
	st, ok := ctx.Effect.State.(*statState)
	if !ok {
		return fmt.Errorf("stat proc %s: unexpected shared state %T", ctx.Effect.Key, ctx.Effect.State)
	}
	value, err := ctx.Coefficient("value")
	if err != nil {
		return err
	}
	st.value += value
	return nil
}

// randomStatProc: a proc that grants one of several stat buffs, picked
// uniformly on every fire.
//
// Params: rppm|chance, duration, value, choices.
func randomStatProc(ctx *simulator.EffectContext) error {
	rate, err := rateConfig(ctx)
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
	choices, err := ctx.Stacks("choices")
	if err != nil {
		return err
	}

	buffs := make([]*simulator.Buff, 0, choices)
	for i := 1; i <= choices; i++ {
		b, err := ctx.NewBuff(simulator.BuffConfig{
			Name:         fmt.Sprintf("%s/%d", ctx.Effect.Key, i),
			Duration:     dur,
			DefaultValue: value,
		})
		if err != nil {
			return err
		}
		buffs = append(buffs, b)
	}

	_, err = ctx.NewProc(simulator.ProcConfig{
		Name:      ctx.Effect.Key,
		Predicate: predicate(ctx),
		Rate:      rate,
		Execute: func(p *simulator.ProcCallback, _ *simulator.CombatEvent) {
			simulator.Pick(p.Actor().RNG(), buffs).Trigger()
		},
	})
	return err
}
