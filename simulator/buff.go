package simulator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

// Forever is the remaining duration reported for buffs without a timer.
const Forever = time.Duration(math.MaxInt64)

// RefreshPolicy decides what re-triggering an active buff does to its timer
type RefreshPolicy int

const (
	RefreshReset    RefreshPolicy = iota // remaining := full duration
	RefreshExtend                        // remaining += duration, optionally capped
	RefreshDisallow                      // remaining untouched, only stacks change
)

// String returns the string representation of RefreshPolicy
func (p RefreshPolicy) String() string {
	switch p {
	case RefreshReset:
		return "reset"
	case RefreshExtend:
		return "extend"
	case RefreshDisallow:
		return "disallow"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseRefreshPolicy parses a string into RefreshPolicy
func ParseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch s {
	case "reset", "":
		return RefreshReset, nil
	case "extend":
		return RefreshExtend, nil
	case "disallow":
		return RefreshDisallow, nil
	default:
		return RefreshReset, fmt.Errorf("invalid refresh policy: %s (must be 'reset', 'extend' or 'disallow')", s)
	}
}

// MarshalJSON implements json.Marshaler for RefreshPolicy
func (p RefreshPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler for RefreshPolicy
func (p *RefreshPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRefreshPolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for RefreshPolicy
func (p *RefreshPolicy) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseRefreshPolicy(node.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// StackBehavior decides whether stacks share one timer or carry their own
type StackBehavior int

const (
	StackShared       StackBehavior = iota // one timer for the whole buff
	StackAsynchronous                      // every stack expires on its own timer
)

func (b StackBehavior) String() string {
	switch b {
	case StackShared:
		return "shared"
	case StackAsynchronous:
		return "asynchronous"
	default:
		return fmt.Sprintf("unknown(%d)", int(b))
	}
}

// BuffID is the stable index of a buff inside its actor's arena.
type BuffID int

// BuffConfig is the resolved definition of a buff. Lifecycle callbacks are
// plain function values; content supplies small closures instead of subtypes.
type BuffConfig struct {
	Name         string
	MaxStacks    int           // 0 means 1
	Duration     time.Duration // 0 means no timer
	DefaultValue float64
	// Cooldown ignores triggers arriving within Cooldown of the last accepted
	// one (0 = no gate).
	Cooldown time.Duration

	Refresh RefreshPolicy
	// ExtendCap bounds RefreshExtend at ExtendCap × Duration (0 = uncapped).
	ExtendCap     float64
	StackBehavior StackBehavior

	// ExpireAtMaxStack expires the buff right after it reaches MaxStacks.
	ExpireAtMaxStack bool

	TickInterval    time.Duration
	TickOnApply     bool // deliver a tick when the buff is applied
	RandomFirstTick bool // first periodic tick lands uniformly inside the first interval
	FinalTick       bool // deliver one last tick at natural expiry
	Reverse         bool // every tick removes one stack

	OnApply       func(b *Buff)
	OnStackChange func(b *Buff, oldStacks, newStacks int)
	OnExpire      func(b *Buff, remaining time.Duration)
	OnTick        func(b *Buff, tick int)
}

func (c *BuffConfig) normalize() error {
	if c.Name == "" {
		return setupErr("name", ErrInvalidStacks, "buff name is required")
	}
	if c.MaxStacks == 0 {
		c.MaxStacks = 1
	}
	if c.MaxStacks < 0 {
		return setupErr("max_stacks", ErrInvalidStacks, "%s: max stacks %d", c.Name, c.MaxStacks)
	}
	if c.Duration < 0 {
		return setupErr("duration", ErrMalformedDuration, "%s: duration %v", c.Name, c.Duration)
	}
	if c.Cooldown < 0 {
		return setupErr("cooldown", ErrMalformedDuration, "%s: cooldown %v", c.Name, c.Cooldown)
	}
	if c.TickInterval < 0 {
		return setupErr("tick_interval", ErrMalformedDuration, "%s: tick interval %v", c.Name, c.TickInterval)
	}
	if c.ExtendCap < 0 || (c.ExtendCap > 0 && c.ExtendCap < 1) {
		return setupErr("extend_cap", ErrMalformedDuration, "%s: extend cap %v must be 0 or >= 1", c.Name, c.ExtendCap)
	}
	if c.StackBehavior == StackAsynchronous && c.Duration == 0 {
		return setupErr("duration", ErrMalformedDuration, "%s: asynchronous stacks need a duration", c.Name)
	}
	if math.IsNaN(c.DefaultValue) {
		return setupErr("default_value", ErrMissingCoefficient, "%s: default value is NaN", c.Name)
	}
	return nil
}

// BuffStats are the per-trial counters of a buff.
type BuffStats struct {
	Triggers       int
	Refreshes      int
	NaturalExpires int
	ForcedExpires  int
	Ticks          int
	Blocked        int // Triggers ignored by the cooldown
	Uptime         time.Duration
}

// Buff is a timed, stacking status effect owned by one actor.
//
// All transitions go through Trigger, Bump, Decrement and Expire; scheduled
// continuations refer back to the buff by arena index and generation, so a
// reset or early expiry turns any outstanding continuation into a no-op.
type Buff struct {
	cfg   BuffConfig
	id    BuffID
	actor *Actor

	stacks   int
	value    float64
	started  time.Duration
	duration time.Duration
	expireAt time.Duration
	epoch    uint64

	expiry      *Event
	maxExpiry   *Event
	ticker      *Event
	stackTimers []*Event
	tick        int
	cooldown    Cooldown

	listeners   []func(b *Buff, oldStacks, newStacks int)
	activeSince time.Duration
	stats       BuffStats
}

// ID returns the arena index.
func (b *Buff) ID() BuffID { return b.id }

// Name returns the buff name.
func (b *Buff) Name() string { return b.cfg.Name }

// Actor returns the owner.
func (b *Buff) Actor() *Actor { return b.actor }

// Config returns a copy of the definition.
func (b *Buff) Config() BuffConfig { return b.cfg }

// Active reports whether the buff has at least one stack.
func (b *Buff) Active() bool { return b != nil && b.stacks > 0 }

// Stacks returns the current stack count.
func (b *Buff) Stacks() int {
	if b == nil {
		return 0
	}
	return b.stacks
}

// MaxStacks returns the stack limit.
func (b *Buff) MaxStacks() int { return b.cfg.MaxStacks }

// AtMaxStacks reports whether no further stack can be added.
func (b *Buff) AtMaxStacks() bool { return b.stacks == b.cfg.MaxStacks }

// Value returns the per-stack value of the current application.
func (b *Buff) Value() float64 { return b.value }

// StackValue returns value × stacks, or 0 while inactive.
func (b *Buff) StackValue() float64 {
	if !b.Active() {
		return 0
	}
	return b.value * float64(b.stacks)
}

// CurrentTick returns the number of ticks delivered during this application.
func (b *Buff) CurrentTick() int { return b.tick }

// Stats returns the counters accumulated during the current trial.
func (b *Buff) Stats() BuffStats { return b.stats }

// Duration returns the full duration set by the latest start or refresh.
func (b *Buff) Duration() time.Duration { return b.duration }

// Started returns when the current application began.
func (b *Buff) Started() time.Duration { return b.started }

// Remaining returns the time until natural expiry, 0 while inactive and
// Forever for buffs without a timer.
func (b *Buff) Remaining() time.Duration {
	if !b.Active() {
		return 0
	}
	now := b.actor.Now()
	if b.cfg.StackBehavior == StackAsynchronous {
		if n := len(b.stackTimers); n > 0 {
			return b.stackTimers[n-1].At() - now
		}
		return 0
	}
	if b.expiry == nil {
		return Forever
	}
	return b.expireAt - now
}

// ExpiresAt returns the absolute natural expiry time (Forever without a timer).
func (b *Buff) ExpiresAt() time.Duration {
	if !b.Active() {
		return 0
	}
	rem := b.Remaining()
	if rem == Forever {
		return Forever
	}
	return b.actor.Now() + rem
}

// Trigger applies one stack with the default value and duration.
func (b *Buff) Trigger() {
	b.TriggerWith(1, b.cfg.DefaultValue, 0)
}

// TriggerStacks applies n stacks with the default value and duration.
func (b *Buff) TriggerStacks(n int) {
	b.TriggerWith(n, b.cfg.DefaultValue, 0)
}

// TriggerWith applies n stacks carrying value. A zero duration selects the
// configured duration. An inactive buff starts; an active buff refreshes its
// timer according to the refresh policy and then bumps its stacks. Triggers
// inside the buff's cooldown are dropped.
func (b *Buff) TriggerWith(n int, value float64, duration time.Duration) {
	precondition(n >= 1, "buff %s: trigger with %d stacks", b.cfg.Name, n)
	precondition(duration >= 0, "buff %s: trigger with negative duration %v", b.cfg.Name, duration)
	if duration == 0 {
		duration = b.cfg.Duration
	}
	if b.cfg.Cooldown > 0 {
		now := b.actor.Now()
		if !b.cooldown.Ready(now) {
			b.stats.Blocked++
			return
		}
		b.cooldown.Start(now, b.cfg.Cooldown)
	}
	b.stats.Triggers++
	if !b.Active() {
		b.start(n, value, duration)
		return
	}
	b.stats.Refreshes++
	reachesMax := b.cfg.ExpireAtMaxStack && b.stacks+n >= b.cfg.MaxStacks
	if !reachesMax {
		b.refresh(duration)
	}
	b.bump(n, value, duration)
}

// Bump adds n stacks (clamped at the maximum) without touching a shared
// timer. Bumping an inactive buff applies it.
func (b *Buff) Bump(n int, value float64) {
	precondition(n >= 1, "buff %s: bump by %d stacks", b.cfg.Name, n)
	if !b.Active() {
		b.stats.Triggers++
		b.start(n, value, b.cfg.Duration)
		return
	}
	b.bump(n, value, b.cfg.Duration)
}

// Decrement removes n stacks; removing the last stack is a forced expiry.
func (b *Buff) Decrement(n int) {
	precondition(n >= 1, "buff %s: decrement by %d stacks", b.cfg.Name, n)
	if !b.Active() {
		return
	}
	if n >= b.stacks {
		b.Expire()
		return
	}
	old := b.stacks
	b.stacks -= n
	if b.cfg.StackBehavior == StackAsynchronous {
		for i := 0; i < n && len(b.stackTimers) > 0; i++ {
			b.actor.sched.Cancel(b.stackTimers[0])
			b.stackTimers = b.stackTimers[1:]
		}
	}
	b.stacksChanged(old, b.stacks)
}

// Expire clears the buff immediately. The expire callback sees the time that
// was still left (Forever for buffs without a timer).
func (b *Buff) Expire() {
	if !b.Active() {
		return
	}
	b.expire(b.Remaining(), false)
}

// OnStacksChanged registers an additional stack-change observer.
func (b *Buff) OnStacksChanged(fn func(b *Buff, oldStacks, newStacks int)) {
	b.listeners = append(b.listeners, fn)
}

// Reset returns the buff to its inactive initial state without running any
// callback. Outstanding continuations are invalidated.
func (b *Buff) Reset() {
	b.cancelTimers()
	b.stacks = 0
	b.value = b.cfg.DefaultValue
	b.started = 0
	b.duration = 0
	b.expireAt = 0
	b.tick = 0
	b.activeSince = 0
	b.stats = BuffStats{}
	b.cooldown.Reset()
	b.epoch++
}

func (b *Buff) start(n int, value float64, duration time.Duration) {
	now := b.actor.Now()
	stacks := min(n, b.cfg.MaxStacks)
	b.stacks = stacks
	b.value = value
	b.started = now
	b.duration = duration
	b.tick = 0
	b.activeSince = now

	switch {
	case b.cfg.StackBehavior == StackAsynchronous:
		for i := 0; i < stacks; i++ {
			b.pushStackTimer(duration)
		}
	case duration > 0:
		b.setExpiry(now + duration)
	}

	b.actor.debug("buff gain", "buff", b, "value", value, "duration", duration)
	if b.cfg.OnApply != nil {
		b.cfg.OnApply(b)
	}
	if !b.Active() {
		return // the apply callback expired us
	}
	b.startTicking()
	if !b.Active() {
		return
	}
	b.stacksChanged(0, stacks)
}

func (b *Buff) refresh(duration time.Duration) {
	if b.cfg.StackBehavior == StackAsynchronous || b.expiry == nil || duration <= 0 {
		return
	}
	now := b.actor.Now()
	switch b.cfg.Refresh {
	case RefreshReset:
		b.duration = duration
		b.setExpiry(now + duration)
	case RefreshExtend:
		remaining := b.expireAt - now + duration
		if b.cfg.ExtendCap > 0 {
			base := b.cfg.Duration
			if base == 0 {
				base = duration
			}
			limit := time.Duration(b.cfg.ExtendCap * float64(base))
			if remaining > limit {
				remaining = limit
			}
		}
		b.duration = remaining
		b.setExpiry(now + remaining)
	case RefreshDisallow:
	}
}

func (b *Buff) bump(n int, value float64, duration time.Duration) {
	old := b.stacks
	b.value = value
	next := min(old+n, b.cfg.MaxStacks)
	if b.cfg.StackBehavior == StackAsynchronous {
		added := next - old
		for i := 0; i < added; i++ {
			b.pushStackTimer(duration)
		}
		// Overflowing stacks refresh the oldest timers.
		for i := added; i < n && len(b.stackTimers) > 0; i++ {
			b.actor.sched.Cancel(b.stackTimers[0])
			b.stackTimers = b.stackTimers[1:]
			b.pushStackTimer(duration)
		}
	}
	b.stacks = next
	if next != old {
		b.stacksChanged(old, next)
	}
}

func (b *Buff) stacksChanged(old, new int) {
	if b.cfg.OnStackChange != nil {
		b.cfg.OnStackChange(b, old, new)
	}
	for _, fn := range b.listeners {
		fn(b, old, new)
	}
	if new > 0 && new == b.cfg.MaxStacks && b.cfg.ExpireAtMaxStack && b.Active() && !b.maxExpiry.Pending() {
		// Observers above have seen the max-stack state; expiry follows as a
		// separate event at the same instant.
		b.maxExpiry = b.after(0, func(b *Buff) {
			b.maxExpiry = nil
			b.expire(b.Remaining(), false)
		})
	}
}

func (b *Buff) expire(remaining time.Duration, natural bool) {
	if !b.Active() {
		return
	}
	now := b.actor.Now()
	if natural && b.cfg.FinalTick && b.cfg.TickInterval > 0 {
		b.deliverTick()
		if !b.Active() {
			return
		}
	}
	b.cancelTimers()
	old := b.stacks
	b.stacks = 0
	b.stats.Uptime += now - b.activeSince
	if natural {
		b.stats.NaturalExpires++
	} else {
		b.stats.ForcedExpires++
	}
	b.epoch++
	epoch := b.epoch

	b.actor.debug("buff expire", "buff", b.cfg.Name, "remaining", remaining, "natural", natural)
	if b.cfg.OnExpire != nil {
		b.cfg.OnExpire(b, remaining)
	}
	// An expire callback that re-applied (or reset) the buff has already
	// reported the new state; the fade is stale.
	if b.epoch != epoch || b.Active() {
		return
	}
	b.stacksChanged(old, 0)
}

func (b *Buff) setExpiry(at time.Duration) {
	b.actor.sched.Cancel(b.expiry)
	b.expireAt = at
	b.expiry = b.after(at-b.actor.Now(), func(b *Buff) {
		b.expiry = nil
		b.expire(0, true)
	})
}

func (b *Buff) pushStackTimer(duration time.Duration) {
	var ev *Event
	ev = b.after(duration, func(b *Buff) {
		for i, t := range b.stackTimers {
			if t == ev {
				b.stackTimers = append(b.stackTimers[:i], b.stackTimers[i+1:]...)
				break
			}
		}
		if b.stacks <= 1 {
			b.expire(0, true)
			return
		}
		old := b.stacks
		b.stacks--
		b.stacksChanged(old, b.stacks)
	})
	b.stackTimers = append(b.stackTimers, ev)
}

func (b *Buff) startTicking() {
	if b.cfg.TickInterval <= 0 {
		return
	}
	if b.cfg.TickOnApply {
		b.deliverTick()
		if !b.Active() {
			return
		}
	}
	first := b.cfg.TickInterval
	if b.cfg.RandomFirstTick {
		first = b.actor.rng.RangeDuration(time.Millisecond, b.cfg.TickInterval)
	}
	a, id, epoch := b.actor, b.id, b.epoch
	b.ticker = a.sched.SchedulePeriodicFrom(first, b.cfg.TickInterval, func() {
		cur := a.buff(id, epoch)
		if cur == nil {
			return
		}
		if cur.expiry != nil && a.Now() >= cur.expireAt {
			// Natural expiry at this instant owns the final tick decision.
			return
		}
		cur.deliverTick()
	})
}

func (b *Buff) deliverTick() {
	b.tick++
	b.stats.Ticks++
	if b.cfg.OnTick != nil {
		b.cfg.OnTick(b, b.tick)
	}
	if b.cfg.Reverse && b.Active() {
		b.Decrement(1)
	}
}

func (b *Buff) cancelTimers() {
	s := b.actor.sched
	s.Cancel(b.expiry)
	s.Cancel(b.maxExpiry)
	s.Cancel(b.ticker)
	for _, t := range b.stackTimers {
		s.Cancel(t)
	}
	b.expiry, b.maxExpiry, b.ticker = nil, nil, nil
	b.stackTimers = b.stackTimers[:0]
}

// after schedules fn against this buff's current generation.
func (b *Buff) after(delay time.Duration, fn func(b *Buff)) *Event {
	a, id, epoch := b.actor, b.id, b.epoch
	return a.sched.Schedule(delay, func() {
		if cur := a.buff(id, epoch); cur != nil {
			fn(cur)
		}
	})
}

// closeUptime folds the open active interval into the uptime counter.
func (b *Buff) closeUptime(now time.Duration) {
	if b.Active() {
		b.stats.Uptime += now - b.activeSince
		b.activeSince = now
	}
}

// LogValue implements slog.LogValuer.
func (b *Buff) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", b.cfg.Name),
		slog.Int("stacks", b.stacks),
		slog.Duration("remaining", b.Remaining()),
	)
}
