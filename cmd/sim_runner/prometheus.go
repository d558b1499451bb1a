package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miretskiy/procsim/simulator"
)

// promExporter holds the gauges written to a Prometheus textfile after a run.
type promExporter struct {
	registry   *prometheus.Registry
	trials     prometheus.Gauge
	simulated  prometheus.Gauge
	events     prometheus.Gauge
	dispatched *prometheus.GaugeVec
	uptime     *prometheus.GaugeVec
	triggers   *prometheus.GaugeVec
	fires      *prometheus.GaugeVec
	rppm       *prometheus.GaugeVec
	chance     *prometheus.GaugeVec
}

func newPromExporter() *promExporter {
	e := &promExporter{
		registry: prometheus.NewRegistry(),
		trials: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procsim_trials",
			Help: "Completed trials",
		}),
		simulated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procsim_simulated_seconds",
			Help: "Total simulated combat time",
		}),
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procsim_scheduler_events",
			Help: "Scheduler callbacks executed",
		}),
		dispatched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procsim_events_dispatched",
			Help: "Combat events delivered to an actor",
		}, []string{"actor"}),
		uptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procsim_buff_uptime_percent",
			Help: "Buff active time as a percentage of simulated time",
		}, []string{"actor", "buff"}),
		triggers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procsim_buff_triggers_per_trial",
			Help: "Average buff triggers per trial",
		}, []string{"actor", "buff"}),
		fires: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procsim_proc_fires",
			Help: "Total proc fires",
		}, []string{"actor", "proc"}),
		rppm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procsim_proc_effective_rppm",
			Help: "Realized proc fires per simulated minute",
		}, []string{"actor", "proc"}),
		chance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procsim_proc_fire_chance",
			Help: "Fires per attempt",
		}, []string{"actor", "proc"}),
	}
	e.registry.MustRegister(
		e.trials,
		e.simulated,
		e.events,
		e.dispatched,
		e.uptime,
		e.triggers,
		e.fires,
		e.rppm,
		e.chance,
	)
	return e
}

func (e *promExporter) update(m *simulator.Metrics) {
	e.trials.Set(float64(m.Trials))
	e.simulated.Set(m.SimulatedSec)
	e.events.Set(float64(m.EventsExecuted))
	for _, am := range m.Actors {
		e.dispatched.WithLabelValues(am.Name).Set(float64(am.Dispatched))
		for _, bm := range am.Buffs {
			e.uptime.WithLabelValues(am.Name, bm.Name).Set(bm.UptimePercent)
			e.triggers.WithLabelValues(am.Name, bm.Name).Set(bm.AvgTriggers)
		}
		for _, pm := range am.Procs {
			e.fires.WithLabelValues(am.Name, pm.Name).Set(float64(pm.Fires))
			e.rppm.WithLabelValues(am.Name, pm.Name).Set(pm.EffectiveRPPM)
			e.chance.WithLabelValues(am.Name, pm.Name).Set(pm.FireChance)
		}
	}
}

func (e *promExporter) writeTextfile(path string) error {
	return prometheus.WriteToTextfile(path, e.registry)
}
