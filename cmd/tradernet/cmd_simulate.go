package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tradernet/internal/display"
	"github.com/nvandessel/tradernet/internal/session"
	"github.com/nvandessel/tradernet/internal/store"
)

// simulationFlags registers the flags that override the simulation section.
func simulationFlags(cmd *cobra.Command) {
	cmd.Flags().Int("nodes", 0, "Number of traders (default from config)")
	cmd.Flags().Float64("edge-probability", 0, "Probability of each directed trust edge")
	cmd.Flags().Int("steps", 0, "Number of time steps")
	cmd.Flags().Int("start", 0, "First time step")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	cmd.Flags().Int("workers", 0, "Goroutines for the quote and update passes")
	cmd.Flags().Int("memory", 0, "Steps of history each trader keeps")
}

// applySimulationFlags copies the flags the user set into e.cfg.
func applySimulationFlags(cmd *cobra.Command, e *env) error {
	sim := &e.cfg.Simulation
	f := cmd.Flags()
	if f.Changed("nodes") {
		sim.Nodes, _ = f.GetInt("nodes")
	}
	if f.Changed("edge-probability") {
		sim.EdgeProbability, _ = f.GetFloat64("edge-probability")
	}
	if f.Changed("steps") {
		sim.Steps, _ = f.GetInt("steps")
	}
	if f.Changed("start") {
		sim.StartStep, _ = f.GetInt("start")
	}
	if f.Changed("seed") {
		sim.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("workers") {
		sim.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("memory") {
		sim.MemoryLength, _ = f.GetInt("memory")
	}
	return e.cfg.Validate()
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulation and store it",
		Long: `Build a random trust network, run the market and store the result.

Examples:
  tradernet simulate                          # defaults from config
  tradernet simulate --nodes 500 --steps 200 --seed 7
  tradernet simulate --no-save --table 20     # print the last 20 steps`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			noSave, _ := cmd.Flags().GetBool("no-save")
			table, _ := cmd.Flags().GetInt("table")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			if err := applySimulationFlags(cmd, e); err != nil {
				return fmt.Errorf("invalid simulation flags: %w", err)
			}

			ctx, stop := withSignals(cmd.Context())
			defer stop()

			sess, err := session.New(e.cfg, session.Options{Logger: e.logger, Anomalies: e.anomalies})
			if err != nil {
				return err
			}
			if _, err := sess.Run(ctx); err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}

			run, err := sess.Record()
			if err != nil {
				return err
			}

			if !noSave {
				rs, err := e.openStore(ctx)
				if err != nil {
					return err
				}
				defer rs.Close()
				if _, err := rs.SaveRun(ctx, run); err != nil {
					return fmt.Errorf("saving run: %w", err)
				}
			}

			return printRun(cmd, run, jsonOut, table)
		},
	}

	simulationFlags(cmd)
	cmd.Flags().Bool("no-save", false, "Do not store the run")
	cmd.Flags().Int("table", 0, "Also print the last N steps")

	return cmd
}

// printRun writes a run as JSON or as a summary panel.
func printRun(cmd *cobra.Command, run *store.Run, jsonOut bool, table int) error {
	out := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(out, struct {
			Run   store.RunSummary `json:"run"`
			Steps []store.Step     `json:"steps"`
		}{run.Summary(), run.Steps})
	}

	fmt.Fprintln(out, display.RunPanel(run.Summary(), run.Steps))
	if table > 0 {
		fmt.Fprintln(out, display.StepTable(run.Steps, table))
	}
	return nil
}
