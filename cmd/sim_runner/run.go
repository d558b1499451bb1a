package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/miretskiy/procsim/integration"
	"github.com/miretskiy/procsim/simulator"
)

// RunReport is the result document of one run.
type RunReport struct {
	RunID       string              `json:"runId"`
	Seed        int64               `json:"seed"`
	Config      simulator.SimConfig `json:"config"`
	RealTimeSec float64             `json:"realTimeSec"`
	Metrics     *simulator.Metrics  `json:"metrics"`
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		configPath  string
		outputPath  string
		metricsFile string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured trial and report aggregate metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			report, err := runSimulation(cmd, rootOpts, cfg)
			if err != nil {
				return err
			}
			if metricsFile != "" {
				exp := newPromExporter()
				exp.update(report.Metrics)
				if err := exp.writeTextfile(metricsFile); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			return writeReport(cmd, rootOpts, report, outputPath)
		},
	}
	addConfigFlags(cmd, &configPath)
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the JSON report to this file instead of stdout")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus text-format metrics to this file")
	return cmd
}

func runSimulation(cmd *cobra.Command, opts *rootOptions, cfg simulator.SimConfig) (*RunReport, error) {
	sim, err := integration.NewSimulator(cfg, simulatorLogger(cmd, opts))
	if err != nil {
		return nil, fmt.Errorf("create simulator: %w", err)
	}
	if opts.Verbose {
		sim.LogEvent = func(msg string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "[SIM] %s\n", msg)
		}
	}

	start := time.Now()
	metrics, err := sim.Run(cmd.Context())
	if err != nil {
		return nil, err
	}
	return &RunReport{
		RunID:       uuid.NewString(),
		Seed:        sim.Seed(),
		Config:      sim.Config(),
		RealTimeSec: time.Since(start).Seconds(),
		Metrics:     metrics,
	}, nil
}

func writeReport(cmd *cobra.Command, opts *rootOptions, report *RunReport, outputPath string) error {
	if outputPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", outputPath)
		return nil
	}
	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printSummary(cmd.OutOrStdout(), report)
	return nil
}

func printSummary(w io.Writer, r *RunReport) {
	m := r.Metrics
	fmt.Fprintf(w, "run %s seed=%d trials=%d simulated=%.0fs\n", r.RunID, r.Seed, m.Trials, m.SimulatedSec)
	for _, am := range m.Actors {
		fmt.Fprintf(w, "%s: %d events dispatched (%d deferred)\n", am.Name, am.Dispatched, am.Deferred)
		for _, bm := range am.Buffs {
			fmt.Fprintf(w, "  buff %-28s uptime %6.2f%%  triggers/trial %7.2f\n", bm.Name, bm.UptimePercent, bm.AvgTriggers)
		}
		for _, pm := range am.Procs {
			fmt.Fprintf(w, "  proc %-28s rppm %6.3f  chance %6.4f  fires p50/p99 %.0f/%.0f\n",
				pm.Name, pm.EffectiveRPPM, pm.FireChance, pm.P50Fires, pm.P99Fires)
		}
	}
}
