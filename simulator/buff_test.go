package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	return NewActor("player", NewScheduler(), 1, nil)
}

func mustBuff(t *testing.T, a *Actor, cfg BuffConfig) *Buff {
	t.Helper()
	b, err := a.NewBuff(cfg)
	require.NoError(t, err)
	return b
}

// at runs fn at absolute time t on the actor's scheduler.
func at(a *Actor, t time.Duration, fn func()) {
	a.Scheduler().ScheduleAt(t, fn)
}

func TestBuffTriggerAndNaturalExpiry(t *testing.T) {
	a := newTestActor(t)
	var applied, expiredWith []time.Duration
	b := mustBuff(t, a, BuffConfig{
		Name:     "Berserking",
		Duration: 10 * time.Second,
		OnApply:  func(b *Buff) { applied = append(applied, b.Actor().Now()) },
		OnExpire: func(b *Buff, remaining time.Duration) { expiredWith = append(expiredWith, remaining) },
	})

	require.False(t, b.Active())
	b.Trigger()
	require.True(t, b.Active())
	require.Equal(t, 1, b.Stacks())
	require.Equal(t, 10*time.Second, b.Remaining())
	require.Equal(t, 10*time.Second, b.ExpiresAt())

	a.Scheduler().AdvanceTo(4 * time.Second)
	require.Equal(t, 6*time.Second, b.Remaining())

	a.Scheduler().AdvanceTo(10 * time.Second)
	require.False(t, b.Active())
	require.Equal(t, time.Duration(0), b.Remaining())
	require.Equal(t, []time.Duration{0}, applied)
	require.Equal(t, []time.Duration{0}, expiredWith, "natural timeout reports zero remaining")

	st := b.Stats()
	require.Equal(t, 1, st.NaturalExpires)
	require.Equal(t, 0, st.ForcedExpires)
	require.Equal(t, 10*time.Second, st.Uptime)
}

func TestBuffRefreshReset(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{Name: "Flurry", Duration: 10 * time.Second, Refresh: RefreshReset})

	for _, when := range []time.Duration{0, 3 * time.Second, 9500 * time.Millisecond, 15 * time.Second} {
		at(a, when, func() {
			b.Trigger()
			assert.Equal(t, 10*time.Second, b.Remaining(), "reset refresh at %v", a.Now())
		})
	}
	a.Scheduler().AdvanceTo(20 * time.Second)
	require.True(t, b.Active())
	require.Equal(t, 25*time.Second, b.ExpiresAt())
	require.Equal(t, 3, b.Stats().Refreshes)
}

func TestBuffRefreshExtendCapped(t *testing.T) {
	a := newTestActor(t)
	var expiredWith []time.Duration
	b := mustBuff(t, a, BuffConfig{
		Name:      "Ignite",
		Duration:  10 * time.Second,
		Refresh:   RefreshExtend,
		ExtendCap: 1.3,
		OnExpire:  func(b *Buff, remaining time.Duration) { expiredWith = append(expiredWith, remaining) },
	})

	// t=0: 10s. t=8: 2s left + 10s = 12s, under the 13s cap.
	at(a, 0, b.Trigger)
	at(a, 8*time.Second, func() {
		b.Trigger()
		require.Equal(t, 12*time.Second, b.Remaining())
	})
	// t=15: forced clear with time left
	at(a, 15*time.Second, b.Expire)

	a.Scheduler().AdvanceTo(30 * time.Second)
	require.Equal(t, []time.Duration{5 * time.Second}, expiredWith)
	require.Equal(t, 1, b.Stats().ForcedExpires)
	require.Equal(t, 0, b.Stats().NaturalExpires)

	// Extending past the cap clamps at 1.3x the base duration
	b.Trigger()
	a.Scheduler().AdvanceTo(31 * time.Second)
	b.Trigger()
	require.Equal(t, 13*time.Second, b.Remaining())
}

func TestBuffRefreshExtendUncapped(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{Name: "Rupture", Duration: 6 * time.Second, Refresh: RefreshExtend})
	b.Trigger()
	a.Scheduler().AdvanceTo(time.Second)
	b.Trigger()
	b.Trigger()
	require.Equal(t, 17*time.Second, b.Remaining())
}

func TestBuffRefreshDisallow(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{
		Name:      "Bloodlust",
		MaxStacks: 5,
		Duration:  10 * time.Second,
		Refresh:   RefreshDisallow,
	})
	b.Trigger()
	a.Scheduler().AdvanceTo(6 * time.Second)
	b.Trigger()
	require.Equal(t, 2, b.Stacks(), "stacks still change")
	require.Equal(t, 4*time.Second, b.Remaining(), "duration is untouched")

	a.Scheduler().AdvanceTo(10 * time.Second)
	require.False(t, b.Active())
}

func TestBuffStackBoundsProperty(t *testing.T) {
	a := newTestActor(t)
	var observed []int
	b := mustBuff(t, a, BuffConfig{
		Name:          "Stacker",
		MaxStacks:     4,
		Duration:      5 * time.Second,
		OnStackChange: func(_ *Buff, _, newStacks int) { observed = append(observed, newStacks) },
	})

	rng := NewRNG(8675309)
	for i := 0; i < 5000; i++ {
		switch rng.RangeInt(0, 4) {
		case 0:
			b.TriggerStacks(rng.RangeInt(1, 6))
		case 1:
			b.Bump(rng.RangeInt(1, 6), 1)
		case 2:
			b.Decrement(rng.RangeInt(1, 3))
		case 3:
			b.Expire()
		case 4:
			a.Scheduler().AdvanceTo(a.Now() + rng.RangeDuration(0, 3*time.Second))
		}
		require.GreaterOrEqual(t, b.Stacks(), 0)
		require.LessOrEqual(t, b.Stacks(), b.MaxStacks())
		require.Equal(t, b.Stacks() > 0, b.Active())
	}
	for _, s := range observed {
		require.True(t, s >= 0 && s <= 4, "observed stack count %d", s)
	}
}

func TestBuffExpireAtMaxStack(t *testing.T) {
	a := newTestActor(t)
	var log []string
	var b *Buff
	b = mustBuff(t, a, BuffConfig{
		Name:             "Static Charge",
		MaxStacks:        3,
		Duration:         10 * time.Second,
		ExpireAtMaxStack: true,
		OnStackChange: func(b *Buff, oldStacks, newStacks int) {
			log = append(log, "stacks")
			if newStacks == 3 {
				// Observers see the max-stack state before expiry
				assert.Equal(t, 3, b.Stacks())
				assert.True(t, b.Active())
			}
		},
		OnExpire: func(b *Buff, remaining time.Duration) {
			log = append(log, "expire")
			assert.Greater(t, remaining, time.Duration(0))
		},
	})

	at(a, 0, b.Trigger)
	at(a, time.Second, b.Trigger)
	at(a, 2*time.Second, func() {
		b.Trigger()
		// No extension on the trigger that reaches max stacks
		assert.Equal(t, 11*time.Second, b.ExpiresAt())
		assert.True(t, b.Active(), "expiry runs as a separate event")
	})
	a.Scheduler().AdvanceTo(2 * time.Second)

	require.False(t, b.Active())
	require.Equal(t, []string{"stacks", "stacks", "stacks", "expire", "stacks"}, log)
	require.Equal(t, 1, b.Stats().ForcedExpires)

	a.Scheduler().AdvanceTo(20 * time.Second)
	require.Equal(t, 1, b.Stats().ForcedExpires, "expires exactly once")
	require.Equal(t, 0, b.Stats().NaturalExpires)
}

func TestBuffExpireAtMaxStackSingleExpiryOnOverflow(t *testing.T) {
	a := newTestActor(t)
	expires := 0
	b := mustBuff(t, a, BuffConfig{
		Name:             "Overload",
		MaxStacks:        2,
		Duration:         10 * time.Second,
		ExpireAtMaxStack: true,
		OnExpire:         func(*Buff, time.Duration) { expires++ },
	})

	b.TriggerStacks(2)
	b.Trigger() // already at max: no second expiry is queued
	b.Bump(1, 0)
	a.Scheduler().AdvanceTo(0)
	require.Equal(t, 1, expires)
	require.False(t, b.Active())
}

func TestBuffDecrement(t *testing.T) {
	a := newTestActor(t)
	var changes [][2]int
	var expiredWith []time.Duration
	b := mustBuff(t, a, BuffConfig{
		Name:          "Lightning Shield",
		MaxStacks:     5,
		Duration:      20 * time.Second,
		OnStackChange: func(_ *Buff, o, n int) { changes = append(changes, [2]int{o, n}) },
		OnExpire:      func(_ *Buff, r time.Duration) { expiredWith = append(expiredWith, r) },
	})

	b.TriggerStacks(4)
	b.Decrement(1)
	require.Equal(t, 3, b.Stacks())
	a.Scheduler().AdvanceTo(5 * time.Second)
	b.Decrement(10)
	require.False(t, b.Active())
	require.Equal(t, [][2]int{{0, 4}, {4, 3}, {3, 0}}, changes)
	require.Equal(t, []time.Duration{15 * time.Second}, expiredWith)

	// Decrementing an inactive buff is a no-op
	b.Decrement(1)
	require.Len(t, changes, 3)
}

func TestBuffValues(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{Name: "Might", MaxStacks: 5, Duration: 10 * time.Second, DefaultValue: 2})
	require.Equal(t, 0.0, b.StackValue())

	b.TriggerWith(2, 5, 0)
	require.Equal(t, 10.0, b.StackValue())
	b.Trigger()
	require.Equal(t, 6.0, b.StackValue(), "default value replaces the per-stack value")

	b.TriggerWith(1, 1, 30*time.Second)
	require.Equal(t, 30*time.Second, b.Remaining(), "explicit duration overrides the default")
	require.Equal(t, 30*time.Second, b.Duration())
}

func TestBuffWithoutTimer(t *testing.T) {
	a := newTestActor(t)
	var expiredWith []time.Duration
	b := mustBuff(t, a, BuffConfig{
		Name:     "Stance",
		OnExpire: func(_ *Buff, r time.Duration) { expiredWith = append(expiredWith, r) },
	})
	b.Trigger()
	require.Equal(t, Forever, b.Remaining())
	require.Equal(t, Forever, b.ExpiresAt())

	a.Scheduler().AdvanceTo(time.Hour)
	require.True(t, b.Active())
	b.Expire()
	require.Equal(t, []time.Duration{Forever}, expiredWith)
}

func TestBuffTicks(t *testing.T) {
	tests := []struct {
		name        string
		tickOnApply bool
		finalTick   bool
		want        []time.Duration
	}{
		{"after first interval", false, false, []time.Duration{2, 4, 6, 8}},
		{"tick on apply", true, false, []time.Duration{0, 2, 4, 6, 8}},
		{"final tick", false, true, []time.Duration{2, 4, 6, 8, 10}},
		{"tick on apply and final tick", true, true, []time.Duration{0, 2, 4, 6, 8, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestActor(t)
			var ticks []time.Duration
			b := mustBuff(t, a, BuffConfig{
				Name:         "Renew",
				Duration:     10 * time.Second,
				TickInterval: 2 * time.Second,
				TickOnApply:  tt.tickOnApply,
				FinalTick:    tt.finalTick,
				OnTick:       func(b *Buff, _ int) { ticks = append(ticks, b.Actor().Now()) },
			})
			b.Trigger()
			a.Scheduler().AdvanceTo(30 * time.Second)

			want := make([]time.Duration, len(tt.want))
			for i, w := range tt.want {
				want[i] = w * time.Second
			}
			require.Equal(t, want, ticks)
			require.Equal(t, len(want), b.Stats().Ticks)
		})
	}
}

func TestBuffNoFinalTickOnForcedExpiry(t *testing.T) {
	a := newTestActor(t)
	ticks := 0
	b := mustBuff(t, a, BuffConfig{
		Name:         "Corruption",
		Duration:     10 * time.Second,
		TickInterval: 3 * time.Second,
		FinalTick:    true,
		OnTick:       func(*Buff, int) { ticks++ },
	})
	b.Trigger()
	a.Scheduler().AdvanceTo(4 * time.Second)
	b.Expire()
	a.Scheduler().AdvanceTo(20 * time.Second)
	require.Equal(t, 1, ticks)
}

func TestBuffRandomFirstTick(t *testing.T) {
	a := newTestActor(t)
	var first time.Duration = -1
	b := mustBuff(t, a, BuffConfig{
		Name:            "Consecration",
		Duration:        30 * time.Second,
		TickInterval:    3 * time.Second,
		RandomFirstTick: true,
		OnTick: func(b *Buff, tick int) {
			if tick == 1 {
				first = b.Actor().Now()
			}
		},
	})
	b.Trigger()
	a.Scheduler().AdvanceTo(3 * time.Second)
	require.Greater(t, first, time.Duration(0))
	require.LessOrEqual(t, first, 3*time.Second)
}

func TestBuffReverse(t *testing.T) {
	a := newTestActor(t)
	var stacks []int
	b := mustBuff(t, a, BuffConfig{
		Name:         "Frost Armor",
		MaxStacks:    5,
		TickInterval: time.Second,
		Reverse:      true,
		OnTick:       func(b *Buff, _ int) { stacks = append(stacks, b.Stacks()) },
	})
	b.TriggerStacks(5)
	a.Scheduler().AdvanceTo(10 * time.Second)

	require.False(t, b.Active())
	require.Equal(t, []int{5, 4, 3, 2, 1}, stacks)
	require.Equal(t, 5, b.Stats().Ticks)
	require.Equal(t, 5*time.Second, b.Stats().Uptime)
}

func TestBuffAsynchronousStacks(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{
		Name:          "Deep Wounds",
		MaxStacks:     3,
		Duration:      10 * time.Second,
		StackBehavior: StackAsynchronous,
	})

	at(a, 0, b.Trigger)
	at(a, 2*time.Second, b.Trigger)
	at(a, 4*time.Second, b.Trigger)
	a.Scheduler().AdvanceTo(4 * time.Second)
	require.Equal(t, 3, b.Stacks())
	require.Equal(t, 10*time.Second, b.Remaining(), "remaining follows the newest stack")

	a.Scheduler().AdvanceTo(10 * time.Second)
	require.Equal(t, 2, b.Stacks())
	a.Scheduler().AdvanceTo(12 * time.Second)
	require.Equal(t, 1, b.Stacks())
	a.Scheduler().AdvanceTo(14 * time.Second)
	require.False(t, b.Active())
	require.Equal(t, 1, b.Stats().NaturalExpires)
}

func TestBuffAsynchronousOverflowRefreshesOldest(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{
		Name:          "Sunder",
		MaxStacks:     2,
		Duration:      10 * time.Second,
		StackBehavior: StackAsynchronous,
	})

	at(a, 0, b.Trigger)
	at(a, time.Second, b.Trigger)
	at(a, 3*time.Second, b.Trigger) // replaces the stack that would expire at 10s
	a.Scheduler().AdvanceTo(10 * time.Second)
	require.Equal(t, 2, b.Stacks())

	a.Scheduler().AdvanceTo(11 * time.Second)
	require.Equal(t, 1, b.Stacks())
	a.Scheduler().AdvanceTo(13 * time.Second)
	require.False(t, b.Active())
}

func TestBuffApplyCallbackMayExpire(t *testing.T) {
	a := newTestActor(t)
	changes := 0
	b := mustBuff(t, a, BuffConfig{
		Name:          "Immediate",
		Duration:      5 * time.Second,
		TickInterval:  time.Second,
		OnApply:       func(b *Buff) { b.Expire() },
		OnStackChange: func(*Buff, int, int) { changes++ },
	})
	b.Trigger()
	require.False(t, b.Active())
	a.Scheduler().AdvanceTo(10 * time.Second)
	require.Equal(t, 0, b.Stats().Ticks)
	require.Equal(t, 1, changes, "only the expiry transition is reported")
}

func TestBuffResetInvalidatesContinuations(t *testing.T) {
	a := newTestActor(t)
	expired := 0
	ticks := 0
	b := mustBuff(t, a, BuffConfig{
		Name:         "Haunt",
		MaxStacks:    3,
		Duration:     8 * time.Second,
		TickInterval: 2 * time.Second,
		OnExpire:     func(*Buff, time.Duration) { expired++ },
		OnTick:       func(*Buff, int) { ticks++ },
	})
	b.TriggerStacks(3)
	a.Scheduler().AdvanceTo(3 * time.Second)
	require.Equal(t, 1, ticks)

	b.Reset()
	require.False(t, b.Active())
	require.Equal(t, BuffStats{}, b.Stats())
	a.Scheduler().AdvanceTo(30 * time.Second)
	require.Equal(t, 0, expired, "reset runs no callbacks")
	require.Equal(t, 1, ticks, "pending ticks are dropped")

	// A continuation captured before the reset resolves to nothing
	require.Nil(t, a.buff(b.ID(), b.epoch-1))
	require.Same(t, b, a.buff(b.ID(), b.epoch))
}

func TestBuffStackListeners(t *testing.T) {
	a := newTestActor(t)
	var order []string
	b := mustBuff(t, a, BuffConfig{
		Name:          "Ordered",
		Duration:      time.Second,
		OnStackChange: func(*Buff, int, int) { order = append(order, "config") },
	})
	b.OnStacksChanged(func(*Buff, int, int) { order = append(order, "listener") })
	b.Trigger()
	require.Equal(t, []string{"config", "listener"}, order)
}

func TestBuffReapplyFromExpireCallback(t *testing.T) {
	a := newTestActor(t)
	var changes [][2]int
	reapplied := false
	b := mustBuff(t, a, BuffConfig{
		Name:     "Second Wind",
		Duration: 5 * time.Second,
		OnExpire: func(b *Buff, _ time.Duration) {
			if !reapplied {
				reapplied = true
				b.Trigger()
			}
		},
	})
	b.OnStacksChanged(func(_ *Buff, oldStacks, newStacks int) {
		changes = append(changes, [2]int{oldStacks, newStacks})
	})

	b.Trigger()
	a.Scheduler().AdvanceTo(5 * time.Second)
	require.True(t, b.Active())
	require.Equal(t, 1, b.Stacks())
	require.Equal(t, 10*time.Second, b.ExpiresAt())
	require.Equal(t, [][2]int{{0, 1}, {0, 1}}, changes, "no fade after the re-apply")

	a.Scheduler().AdvanceTo(10 * time.Second)
	require.False(t, b.Active())
	require.Equal(t, [][2]int{{0, 1}, {0, 1}, {1, 0}}, changes)
}

func TestBuffCooldownGatesTriggers(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{
		Name:      "Gated",
		MaxStacks: 5,
		Duration:  20 * time.Second,
		Cooldown:  3 * time.Second,
	})

	b.Trigger()
	at(a, time.Second, b.Trigger)
	at(a, 3*time.Second, b.Trigger)
	at(a, 5*time.Second, b.Trigger)
	at(a, 6*time.Second, b.Trigger)
	a.Scheduler().AdvanceTo(6 * time.Second)

	require.Equal(t, 3, b.Stacks())
	st := b.Stats()
	require.Equal(t, 3, st.Triggers)
	require.Equal(t, 2, st.Blocked)

	b.Reset()
	b.Trigger()
	require.Equal(t, 1, b.Stacks(), "reset clears the cooldown")
}

func TestBuffPreconditions(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{Name: "Guarded", Duration: time.Second})
	require.Panics(t, func() { b.TriggerStacks(0) })
	require.Panics(t, func() { b.TriggerWith(1, 0, -time.Second) })
	require.Panics(t, func() { b.Bump(0, 0) })
	require.Panics(t, func() { b.Decrement(0) })
}

func TestBuffConfigValidation(t *testing.T) {
	a := newTestActor(t)
	tests := []struct {
		name string
		cfg  BuffConfig
		err  error
	}{
		{"missing name", BuffConfig{}, ErrInvalidStacks},
		{"negative max stacks", BuffConfig{Name: "x", MaxStacks: -1}, ErrInvalidStacks},
		{"negative duration", BuffConfig{Name: "x", Duration: -time.Second}, ErrMalformedDuration},
		{"negative tick", BuffConfig{Name: "x", TickInterval: -time.Second}, ErrMalformedDuration},
		{"extend cap below one", BuffConfig{Name: "x", ExtendCap: 0.5}, ErrMalformedDuration},
		{"async without duration", BuffConfig{Name: "x", StackBehavior: StackAsynchronous}, ErrMalformedDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.NewBuff(tt.cfg)
			require.ErrorIs(t, err, tt.err)
			require.True(t, IsSetupError(err))
		})
	}

	mustBuff(t, a, BuffConfig{Name: "dup"})
	_, err := a.NewBuff(BuffConfig{Name: "dup"})
	require.ErrorIs(t, err, ErrDuplicateContent)
}

func TestRefreshPolicyParse(t *testing.T) {
	for _, p := range []RefreshPolicy{RefreshReset, RefreshExtend, RefreshDisallow} {
		parsed, err := ParseRefreshPolicy(p.String())
		require.NoError(t, err)
		require.Equal(t, p, parsed)
	}
	_, err := ParseRefreshPolicy("sometimes")
	require.Error(t, err)
}
