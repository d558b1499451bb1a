package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/miretskiy/procsim/simulator"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

var validFormats = []string{"text", "json"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sim_runner",
		Short: "Proc and buff simulation runner",
		Long: `Run Monte-Carlo trials of proc-driven buffs against configured attack
cadences and report uptime, fire rates and realized RPPM.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newTraceCommand(opts))
	return cmd
}

// newLogger returns a stderr logger; debug level when verbose.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func simulatorLogger(cmd *cobra.Command, opts *rootOptions) simulator.Option {
	return simulator.WithLogger(newLogger(cmd, opts.Verbose))
}

// loadConfig reads path, overlays the environment and applies the flag
// overrides that were set explicitly.
func loadConfig(cmd *cobra.Command, path string) (simulator.SimConfig, error) {
	cfg, err := simulator.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	if err := simulator.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("iterations") {
		cfg.Iterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("duration") {
		cfg.DurationSec, _ = flags.GetFloat64("duration")
	}
	return cfg, nil
}

// addConfigFlags registers the config file and run override flags.
func addConfigFlags(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", "", "path to YAML or JSON configuration file")
	cmd.Flags().Int64("seed", 0, "run seed (0 = random)")
	cmd.Flags().Int("iterations", 0, "number of trials")
	cmd.Flags().Float64("duration", 0, "combat length of one trial in seconds")
	_ = cmd.MarkFlagRequired("config")
}
