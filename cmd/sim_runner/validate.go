package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miretskiy/procsim/integration"
)

// validationResult is the json form of the validate command's output.
type validationResult struct {
	Valid   bool   `json:"valid"`
	Actors  int    `json:"actors,omitempty"`
	Content int    `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newValidateCommand(rootOpts *rootOptions) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration and instantiate its content without running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := validate(cmd, rootOpts, configPath)
			if rootOpts.Format == "json" {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
					return err
				}
			} else if res.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "config valid: %d actors, %d content identifiers\n", res.Actors, res.Content)
			}
			if !res.Valid {
				return fmt.Errorf("invalid config: %s", res.Error)
			}
			return nil
		},
	}
	addConfigFlags(cmd, &configPath)
	return cmd
}

func validate(cmd *cobra.Command, opts *rootOptions, path string) validationResult {
	cfg, err := loadConfig(cmd, path)
	if err != nil {
		return validationResult{Error: err.Error()}
	}
	sim, err := integration.NewSimulator(cfg, simulatorLogger(cmd, opts))
	if err != nil {
		return validationResult{Error: err.Error()}
	}
	return validationResult{Valid: true, Actors: len(sim.Actors()), Content: len(cfg.Content)}
}
