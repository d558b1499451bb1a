package simulator

import (
	"sort"
	"time"
)

// BuffMetrics aggregates one buff across trials
type BuffMetrics struct {
	Name           string  `json:"name"`
	Triggers       int     `json:"triggers"`       // Total trigger calls
	Refreshes      int     `json:"refreshes"`      // Triggers that landed on an active buff
	NaturalExpires int     `json:"naturalExpires"` // Timed out
	ForcedExpires  int     `json:"forcedExpires"`  // Cleared early (expire, decrement, max stack)
	Ticks          int     `json:"ticks"`          // Periodic ticks delivered
	UptimeSec      float64 `json:"uptimeSec"`      // Total active time
	UptimePercent  float64 `json:"uptimePercent"`  // Active time / simulated time (0-100%)
	AvgTriggers    float64 `json:"avgTriggers"`    // Triggers per trial
}

// ProcMetrics aggregates one proc callback across trials
type ProcMetrics struct {
	Name          string  `json:"name"`
	Events        int     `json:"events"`        // Qualifying events observed while active
	Attempts      int     `json:"attempts"`      // Events that reached the random draw
	Fires         int     `json:"fires"`         // Successful attempts
	FireChance    float64 `json:"fireChance"`    // Fires / attempts
	EffectiveRPPM float64 `json:"effectiveRPPM"` // Fires per simulated minute
	P50Fires      float64 `json:"p50Fires"`      // Median fires per trial
	P99Fires      float64 `json:"p99Fires"`      // 99th percentile fires per trial

	firesPerTrial []float64
}

// ActorMetrics groups the buff and proc metrics of one actor
type ActorMetrics struct {
	Name       string         `json:"name"`
	Dispatched int            `json:"dispatched"` // Combat events delivered
	Deferred   int            `json:"deferred"`   // Events dispatched from inside another dispatch
	Buffs      []*BuffMetrics `json:"buffs"`
	Procs      []*ProcMetrics `json:"procs"`

	buffIndex map[string]*BuffMetrics
	procIndex map[string]*ProcMetrics
}

// Metrics tracks proc and buff statistics over a whole run
type Metrics struct {
	Trials         int             `json:"trials"`         // Completed trials
	SimulatedSec   float64         `json:"simulatedSec"`   // Total simulated combat time
	EventsExecuted uint64          `json:"eventsExecuted"` // Scheduler callbacks run
	Actors         []*ActorMetrics `json:"actors"`

	actorIndex map[string]*ActorMetrics
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		Actors:     make([]*ActorMetrics, 0),
		actorIndex: make(map[string]*ActorMetrics),
	}
}

// Actor returns the metrics of one actor, or nil.
func (m *Metrics) Actor(name string) *ActorMetrics {
	return m.actorIndex[name]
}

// Buff returns the metrics of one buff, or nil.
func (a *ActorMetrics) Buff(name string) *BuffMetrics {
	if a == nil {
		return nil
	}
	return a.buffIndex[name]
}

// Proc returns the metrics of one proc callback, or nil.
func (a *ActorMetrics) Proc(name string) *ProcMetrics {
	if a == nil {
		return nil
	}
	return a.procIndex[name]
}

// RecordTrial folds the per-trial counters of actors into the run totals.
// Call it after combat end so buff uptime is closed.
func (m *Metrics) RecordTrial(actors []*Actor, duration time.Duration, executed uint64) {
	m.Trials++
	m.SimulatedSec += duration.Seconds()
	m.EventsExecuted += executed

	for _, actor := range actors {
		am := m.actorMetrics(actor.Name())
		am.Dispatched += actor.Dispatched()
		am.Deferred += actor.Deferred()
		for _, b := range actor.Buffs() {
			bm := am.buffMetrics(b.Name())
			st := b.Stats()
			bm.Triggers += st.Triggers
			bm.Refreshes += st.Refreshes
			bm.NaturalExpires += st.NaturalExpires
			bm.ForcedExpires += st.ForcedExpires
			bm.Ticks += st.Ticks
			bm.UptimeSec += st.Uptime.Seconds()
		}
		for _, p := range actor.Procs() {
			pm := am.procMetrics(p.Name())
			st := p.Stats()
			pm.Events += st.Events
			pm.Attempts += st.Attempts
			pm.Fires += st.Fires
			pm.firesPerTrial = append(pm.firesPerTrial, float64(st.Fires))
		}
	}
	m.update()
}

// update recomputes the derived ratios from the totals. Percentiles need the
// whole per-trial series sorted, so they are filled in by Clone.
func (m *Metrics) update() {
	minutes := m.SimulatedSec / 60
	for _, am := range m.Actors {
		for _, bm := range am.Buffs {
			if m.SimulatedSec > 0 {
				bm.UptimePercent = bm.UptimeSec / m.SimulatedSec * 100
			}
			bm.AvgTriggers = float64(bm.Triggers) / float64(m.Trials)
		}
		for _, pm := range am.Procs {
			if pm.Attempts > 0 {
				pm.FireChance = float64(pm.Fires) / float64(pm.Attempts)
			}
			if minutes > 0 {
				pm.EffectiveRPPM = float64(pm.Fires) / minutes
			}
		}
	}
}

func (m *Metrics) actorMetrics(name string) *ActorMetrics {
	if am, ok := m.actorIndex[name]; ok {
		return am
	}
	am := &ActorMetrics{
		Name:      name,
		Buffs:     make([]*BuffMetrics, 0),
		Procs:     make([]*ProcMetrics, 0),
		buffIndex: make(map[string]*BuffMetrics),
		procIndex: make(map[string]*ProcMetrics),
	}
	m.actorIndex[name] = am
	m.Actors = append(m.Actors, am)
	return am
}

func (a *ActorMetrics) buffMetrics(name string) *BuffMetrics {
	if bm, ok := a.buffIndex[name]; ok {
		return bm
	}
	bm := &BuffMetrics{Name: name}
	a.buffIndex[name] = bm
	a.Buffs = append(a.Buffs, bm)
	return bm
}

func (a *ActorMetrics) procMetrics(name string) *ProcMetrics {
	if pm, ok := a.procIndex[name]; ok {
		return pm
	}
	pm := &ProcMetrics{Name: name}
	a.procIndex[name] = pm
	a.Procs = append(a.Procs, pm)
	return pm
}

// Helper functions for statistics

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 1 {
		return sortedValues[len(sortedValues)-1]
	}

	// Linear interpolation between closest ranks
	rank := p * float64(len(sortedValues)-1)
	lowerIdx := int(rank)
	upperIdx := lowerIdx + 1
	if upperIdx >= len(sortedValues) {
		return sortedValues[lowerIdx]
	}

	fraction := rank - float64(lowerIdx)
	return sortedValues[lowerIdx]*(1-fraction) + sortedValues[upperIdx]*fraction
}

// MeanFires returns the average fires per trial.
func (p *ProcMetrics) MeanFires() float64 {
	return mean(p.firesPerTrial)
}

// Clone creates a deep copy of the metrics with fire percentiles computed.
func (m *Metrics) Clone() *Metrics {
	clone := NewMetrics()
	clone.Trials = m.Trials
	clone.SimulatedSec = m.SimulatedSec
	clone.EventsExecuted = m.EventsExecuted
	for _, am := range m.Actors {
		ac := clone.actorMetrics(am.Name)
		ac.Dispatched = am.Dispatched
		ac.Deferred = am.Deferred
		for _, bm := range am.Buffs {
			*ac.buffMetrics(bm.Name) = *bm
		}
		for _, pm := range am.Procs {
			pc := ac.procMetrics(pm.Name)
			*pc = *pm
			pc.firesPerTrial = append([]float64(nil), pm.firesPerTrial...)
			sort.Float64s(pc.firesPerTrial)
			pc.P50Fires = percentile(pc.firesPerTrial, 0.50)
			pc.P99Fires = percentile(pc.firesPerTrial, 0.99)
		}
	}
	return clone
}
