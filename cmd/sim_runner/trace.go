package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/miretskiy/procsim/integration"
)

func newTraceCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		configPath string
		step       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Step a single trial and print every buff stack change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if step <= 0 {
				return fmt.Errorf("step must be positive, got %v", step)
			}
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			sess, err := integration.NewSession(cfg, simulatorLogger(cmd, rootOpts))
			if err != nil {
				return err
			}
			return trace(cmd, rootOpts, sess, step)
		},
	}
	addConfigFlags(cmd, &configPath)
	cmd.Flags().DurationVar(&step, "step", time.Second, "virtual time advanced per step")
	return cmd
}

func trace(cmd *cobra.Command, opts *rootOptions, sess *integration.Session, step time.Duration) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for !sess.Done() {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		res, err := sess.Advance(step)
		if err != nil {
			return err
		}
		if opts.Format == "json" {
			if err := enc.Encode(res); err != nil {
				return err
			}
			continue
		}
		printStep(out, res)
	}
	return nil
}

func printStep(w io.Writer, res *integration.StepResult) {
	for _, l := range res.Logs {
		fmt.Fprintf(w, "%10v %-12s %-6s %s\n", l.At, l.Actor, l.Kind, l.Message)
	}
	if res.Done {
		for _, m := range res.Metrics {
			if m.Type == "counter" {
				fmt.Fprintf(w, "%10v %-12s fires  %s=%.0f\n", res.To, m.Tags["actor"], m.Tags["proc"], m.Value)
			}
		}
	}
}
