package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustProc(t *testing.T, a *Actor, cfg ProcConfig) *ProcCallback {
	t.Helper()
	p, err := a.NewProc(cfg)
	require.NoError(t, err)
	return p
}

func hit(action string) CombatEvent {
	return CombatEvent{Source: "player", Target: "boss", School: "physical", Result: ResultHit, Amount: 100, Action: action}
}

func TestProcFiresBuffByDefault(t *testing.T) {
	a := newTestActor(t)
	b := mustBuff(t, a, BuffConfig{Name: "Crusader", Duration: 15 * time.Second})
	p := mustProc(t, a, ProcConfig{
		Name: "Crusader Proc",
		Rate: RateConfig{Kind: RateChance, Chance: 1},
		Buff: b,
	})

	require.Equal(t, 1, a.Dispatch(hit("melee")))
	require.True(t, b.Active())
	require.Equal(t, ProcStats{Events: 1, Attempts: 1, Fires: 1}, p.Stats())
}

func TestProcPredicateGates(t *testing.T) {
	a := newTestActor(t)
	fires := 0
	p := mustProc(t, a, ProcConfig{
		Name:      "Fire Only",
		Predicate: AllOf(OnSchool("fire"), OnLanded(), OnDamage()),
		Rate:      RateConfig{Kind: RateChance, Chance: 1},
		Execute:   func(*ProcCallback, *CombatEvent) { fires++ },
	})

	a.Dispatch(hit("melee"))
	a.Dispatch(CombatEvent{School: "fire", Result: ResultMiss, Amount: 0})
	a.Dispatch(CombatEvent{School: "fire", Result: ResultCrit, Amount: 0})
	require.Equal(t, 0, fires)
	require.Equal(t, 0, p.Stats().Events)

	a.Dispatch(CombatEvent{School: "fire", Result: ResultCrit, Amount: 50})
	require.Equal(t, 1, fires)
}

func TestProcPredicates(t *testing.T) {
	tick := CombatEvent{School: "shadow", Result: ResultHit, Amount: 10, Periodic: true, Action: "corruption"}
	direct := CombatEvent{School: "fire", Result: ResultCrit, Amount: 10, Action: "fireball"}

	require.True(t, OnPeriodic()(&tick))
	require.False(t, OnPeriodic()(&direct))
	require.True(t, OnDirect()(&direct))
	require.True(t, OnCrit()(&direct))
	require.False(t, OnCrit()(&tick))
	require.True(t, OnAction("fireball", "scorch")(&direct))
	require.True(t, AnyOf(OnSchool("arcane"), OnAction("corruption"))(&tick))
	require.False(t, AnyOf()(&tick))
	require.True(t, AllOf()(&tick))
	require.True(t, Not(OnPeriodic())(&direct))
}

func TestProcAtMostOncePerEvent(t *testing.T) {
	a := newTestActor(t)
	calls := 0
	p := mustProc(t, a, ProcConfig{
		Name: "Echo",
		Rate: RateConfig{Kind: RateChance, Chance: 1},
		Execute: func(self *ProcCallback, ev *CombatEvent) {
			calls++
			// Offering the same event again from inside the action is ignored
			require.False(t, self.Handle(ev))
		},
	})

	ev := hit("melee")
	require.True(t, p.Handle(&ev))
	require.Equal(t, 1, calls)
}

func TestProcActivateDeactivate(t *testing.T) {
	a := newTestActor(t)
	fires := 0
	p := mustProc(t, a, ProcConfig{
		Name:          "Toggle",
		Rate:          RateConfig{Kind: RateChance, Chance: 1},
		Execute:       func(*ProcCallback, *CombatEvent) { fires++ },
		StartInactive: true,
	})

	a.Dispatch(hit("melee"))
	require.Equal(t, 0, fires)

	p.Activate()
	a.Dispatch(hit("melee"))
	require.Equal(t, 1, fires)

	p.Deactivate()
	a.Dispatch(hit("melee"))
	require.Equal(t, 1, fires)

	// Reset restores the configured initial state
	p.Activate()
	p.Reset()
	require.False(t, p.Active())
}

func TestProcActivateWithBuff(t *testing.T) {
	a := newTestActor(t)
	gate := mustBuff(t, a, BuffConfig{Name: "Avenging Wrath", Duration: 20 * time.Second})
	fires := 0
	p := mustProc(t, a, ProcConfig{
		Name:    "Wrath Strikes",
		Rate:    RateConfig{Kind: RateChance, Chance: 1},
		Execute: func(*ProcCallback, *CombatEvent) { fires++ },
	})
	p.ActivateWithBuff(gate)
	require.False(t, p.Active(), "follows the inactive buff immediately")

	a.Dispatch(hit("melee"))
	require.Equal(t, 0, fires)

	gate.Trigger()
	require.True(t, p.Active())
	a.Dispatch(hit("melee"))
	require.Equal(t, 1, fires)

	a.Scheduler().AdvanceTo(20 * time.Second)
	require.False(t, gate.Active())
	require.False(t, p.Active())
	a.Dispatch(hit("melee"))
	require.Equal(t, 1, fires)

	require.Panics(t, func() { p.ActivateWithBuff(gate) })
}

func TestProcActivateWithNilBuffPanics(t *testing.T) {
	a := newTestActor(t)
	p := mustProc(t, a, ProcConfig{
		Name:    "Unbound",
		Rate:    RateConfig{Kind: RateChance, Chance: 1},
		Execute: func(*ProcCallback, *CombatEvent) {},
	})
	require.PanicsWithValue(t, "BUG: proc Unbound: activate with nil buff", func() { p.ActivateWithBuff(nil) })
	require.True(t, p.Active())
}

func TestProcStaysActiveWhenGateReappliesOnExpire(t *testing.T) {
	a := newTestActor(t)
	renewed := false
	gate := mustBuff(t, a, BuffConfig{
		Name:     "Renewing Gate",
		Duration: 5 * time.Second,
		OnExpire: func(b *Buff, _ time.Duration) {
			if !renewed {
				renewed = true
				b.Trigger()
			}
		},
	})
	fires := 0
	p := mustProc(t, a, ProcConfig{
		Name:    "Gated Strikes",
		Rate:    RateConfig{Kind: RateChance, Chance: 1},
		Execute: func(*ProcCallback, *CombatEvent) { fires++ },
	})
	p.ActivateWithBuff(gate)
	gate.Trigger()

	a.Scheduler().AdvanceTo(5 * time.Second)
	require.True(t, gate.Active())
	require.True(t, p.Active(), "activation follows the re-applied buff")
	a.Dispatch(hit("melee"))
	require.Equal(t, 1, fires)

	a.Scheduler().AdvanceTo(10 * time.Second)
	require.False(t, p.Active())
}

func TestProcActivateWithBuffAcrossReset(t *testing.T) {
	a := newTestActor(t)
	gate := mustBuff(t, a, BuffConfig{Name: "Gate"})
	p := mustProc(t, a, ProcConfig{
		Name:    "Gated",
		Rate:    RateConfig{Kind: RateChance, Chance: 1},
		Execute: func(*ProcCallback, *CombatEvent) {},
	})
	p.ActivateWithBuff(gate)
	gate.Trigger()
	require.True(t, p.Active())

	a.Scheduler().Reset()
	a.Reset(1)
	require.False(t, gate.Active())
	require.False(t, p.Active())

	gate.Trigger()
	require.True(t, p.Active(), "binding survives reset")
}

func TestProcCascadeUnlocksAnotherProc(t *testing.T) {
	a := newTestActor(t)
	unlock := mustBuff(t, a, BuffConfig{Name: "Unlock", Duration: 10 * time.Second})
	opener := mustProc(t, a, ProcConfig{
		Name: "Opener",
		Rate: RateConfig{Kind: RateChance, Chance: 1},
		Buff: unlock,
	})
	followups := 0
	follow := mustProc(t, a, ProcConfig{
		Name:    "Follow Up",
		Rate:    RateConfig{Kind: RateChance, Chance: 1},
		Execute: func(*ProcCallback, *CombatEvent) { followups++ },
	})
	follow.ActivateWithBuff(unlock)

	// The event that unlocks the follow-up is not seen by it
	require.Equal(t, 1, a.Dispatch(hit("melee")))
	require.Equal(t, 0, followups)
	require.True(t, follow.Active())

	// The next event is
	require.Equal(t, 2, a.Dispatch(hit("melee")))
	require.Equal(t, 1, followups)
	require.Equal(t, 2, opener.Stats().Fires)
	require.Equal(t, 1, unlock.Stats().Refreshes)
}

func TestProcReentrantDispatchDeferred(t *testing.T) {
	a := newTestActor(t)
	var order []string
	mustProc(t, a, ProcConfig{
		Name:      "Chain Lightning",
		Predicate: OnAction("melee"),
		Rate:      RateConfig{Kind: RateChance, Chance: 1},
		Execute: func(p *ProcCallback, ev *CombatEvent) {
			order = append(order, "chain")
			p.Actor().Dispatch(CombatEvent{School: "nature", Result: ResultHit, Amount: 50, Action: "chain"})
			order = append(order, "chain done")
		},
	})
	mustProc(t, a, ProcConfig{
		Name:    "Observer",
		Rate:    RateConfig{Kind: RateChance, Chance: 1},
		Execute: func(_ *ProcCallback, ev *CombatEvent) { order = append(order, "observe "+ev.Action) },
	})

	at(a, time.Second, func() { a.Dispatch(hit("melee")) })
	a.Scheduler().AdvanceTo(time.Second)

	require.Equal(t, []string{"chain", "chain done", "observe melee", "observe chain"}, order)
	require.Equal(t, 2, a.Dispatched())
	require.Equal(t, 1, a.Deferred())
}

func TestProcRateModelDrivesFires(t *testing.T) {
	a := newTestActor(t)
	p := mustProc(t, a, ProcConfig{
		Name:    "Windfury",
		Rate:    RateConfig{Kind: RateChance, Chance: 0.2, Cooldown: 3 * time.Second},
		Execute: func(*ProcCallback, *CombatEvent) {},
	})

	var fireTimes []time.Duration
	for i := 1; i <= 2000; i++ {
		at(a, time.Duration(i)*time.Second, func() {
			if a.Dispatch(hit("melee")) > 0 {
				fireTimes = append(fireTimes, a.Now())
			}
		})
	}
	a.Scheduler().AdvanceTo(2000 * time.Second)

	require.NotEmpty(t, fireTimes)
	for i := 1; i < len(fireTimes); i++ {
		require.GreaterOrEqual(t, fireTimes[i]-fireTimes[i-1], 3*time.Second)
	}
	st := p.Stats()
	require.Equal(t, 2000, st.Events)
	require.Less(t, st.Attempts, st.Events, "events inside the cooldown never reach the draw")
	require.Equal(t, len(fireTimes), st.Fires)
}

func TestProcIsolatedStream(t *testing.T) {
	a := newTestActor(t)
	shared := mustProc(t, a, ProcConfig{Name: "Shared", Rate: RateConfig{Kind: RateChance, Chance: 0.5}, Execute: func(*ProcCallback, *CombatEvent) {}})
	isolated := mustProc(t, a, ProcConfig{Name: "Isolated", Rate: RateConfig{Kind: RateChance, Chance: 0.5}, Execute: func(*ProcCallback, *CombatEvent) {}, IsolatedRNG: true})

	require.Same(t, a.RNG(), shared.rng)
	require.Same(t, a.Stream("proc/Isolated"), isolated.rng)
	require.NotSame(t, a.RNG(), isolated.rng)
}

func TestProcConfigErrors(t *testing.T) {
	a := newTestActor(t)

	_, err := a.NewProc(ProcConfig{Name: "No Action", Rate: RateConfig{Kind: RateChance, Chance: 1}})
	require.True(t, IsSetupError(err))

	_, err = a.NewProc(ProcConfig{Name: "Bad Rate", Rate: RateConfig{Kind: RateTimeWeighted}, Execute: func(*ProcCallback, *CombatEvent) {}})
	require.ErrorIs(t, err, ErrInvalidRate)

	mustProc(t, a, ProcConfig{Name: "Dup", Rate: RateConfig{Kind: RateChance, Chance: 1}, Execute: func(*ProcCallback, *CombatEvent) {}})
	_, err = a.NewProc(ProcConfig{Name: "Dup", Rate: RateConfig{Kind: RateChance, Chance: 1}, Execute: func(*ProcCallback, *CombatEvent) {}})
	require.ErrorIs(t, err, ErrDuplicateContent)

	require.NotNil(t, a.ProcByName("Dup"))
	require.Nil(t, a.ProcByName("Missing"))
	require.Nil(t, a.Proc(ProcID(99)))
}
