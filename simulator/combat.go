package simulator

import (
	"fmt"
	"time"
)

// CombatResult classifies the outcome of the action that produced an event
type CombatResult int

const (
	ResultHit CombatResult = iota
	ResultCrit
	ResultMiss
	ResultNone // no attack table roll (e.g. a heal or an aura application)
)

func (r CombatResult) String() string {
	switch r {
	case ResultHit:
		return "hit"
	case ResultCrit:
		return "crit"
	case ResultMiss:
		return "miss"
	case ResultNone:
		return "none"
	default:
		return "unknown"
	}
}

// CombatEvent is the descriptor handed to proc predicates and execute actions.
// It is produced by the damage-resolution collaborator.
type CombatEvent struct {
	Time     time.Duration
	Source   string
	Target   string
	School   string
	Result   CombatResult
	Amount   float64
	Periodic bool
	Action   string
}

func (e CombatEvent) String() string {
	return fmt.Sprintf("Combat(t=%v, %s->%s, action=%s, school=%s, %s, amount=%.1f, periodic=%v)",
		e.Time, e.Source, e.Target, e.Action, e.School, e.Result, e.Amount, e.Periodic)
}

// TriggerPredicate decides whether an event qualifies for a proc attempt.
type TriggerPredicate func(ev *CombatEvent) bool

// AllOf qualifies events that pass every predicate.
func AllOf(preds ...TriggerPredicate) TriggerPredicate {
	return func(ev *CombatEvent) bool {
		for _, p := range preds {
			if p != nil && !p(ev) {
				return false
			}
		}
		return true
	}
}

// AnyOf qualifies events that pass at least one predicate.
func AnyOf(preds ...TriggerPredicate) TriggerPredicate {
	return func(ev *CombatEvent) bool {
		for _, p := range preds {
			if p != nil && p(ev) {
				return true
			}
		}
		return false
	}
}

// Not inverts a predicate.
func Not(pred TriggerPredicate) TriggerPredicate {
	return func(ev *CombatEvent) bool { return !pred(ev) }
}

// OnSchool qualifies events of one of the given schools.
func OnSchool(schools ...string) TriggerPredicate {
	return func(ev *CombatEvent) bool {
		for _, s := range schools {
			if ev.School == s {
				return true
			}
		}
		return false
	}
}

// OnLanded qualifies hits and crits.
func OnLanded() TriggerPredicate {
	return func(ev *CombatEvent) bool { return ev.Result == ResultHit || ev.Result == ResultCrit }
}

// OnCrit qualifies critical strikes only.
func OnCrit() TriggerPredicate {
	return func(ev *CombatEvent) bool { return ev.Result == ResultCrit }
}

// OnDamage qualifies events that dealt a nonzero amount.
func OnDamage() TriggerPredicate {
	return func(ev *CombatEvent) bool { return ev.Amount > 0 }
}

// OnPeriodic qualifies periodic (tick) events; OnDirect the rest.
func OnPeriodic() TriggerPredicate {
	return func(ev *CombatEvent) bool { return ev.Periodic }
}

func OnDirect() TriggerPredicate {
	return func(ev *CombatEvent) bool { return !ev.Periodic }
}

// OnAction qualifies events produced by one of the given actions.
func OnAction(actions ...string) TriggerPredicate {
	return func(ev *CombatEvent) bool {
		for _, a := range actions {
			if ev.Action == a {
				return true
			}
		}
		return false
	}
}
