package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tradernet/internal/network"
	"github.com/nvandessel/tradernet/internal/session"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [run-id]",
		Short: "Render a trust network as Graphviz DOT",
		Long: `Render the trust network of a stored run, or simulate a fresh network and
color each trader by its state after the last step.

Examples:
  tradernet graph <id> | dot -Tsvg > net.svg
  tradernet graph --nodes 40 --steps 10 --seed 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				run, err := loadRun(cmd, args[0])
				if err != nil {
					return err
				}
				g, err := session.RunGraph(run)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), network.RenderGraphDOT(g))
				return nil
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			if err := applySimulationFlags(cmd, e); err != nil {
				return fmt.Errorf("invalid simulation flags: %w", err)
			}

			sess, err := session.New(e.cfg, session.Options{Logger: e.logger, Anomalies: e.anomalies})
			if err != nil {
				return err
			}
			if _, err := sess.Run(cmd.Context()); err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), network.RenderDOT(sess.Network(), sess.NextStep()-1))
			return nil
		},
	}
	simulationFlags(cmd)
	return cmd
}

func newInfluenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "influence <run-id>",
		Short: "Rank the traders of a run by how widely they are trusted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			top, _ := cmd.Flags().GetInt("top")
			damping, _ := cmd.Flags().GetFloat64("damping")

			run, err := loadRun(cmd, args[0])
			if err != nil {
				return err
			}
			g, err := session.RunGraph(run)
			if err != nil {
				return err
			}

			icfg := network.DefaultInfluenceConfig()
			icfg.DampingFactor = damping
			ranked := network.TopInfluencers(network.ComputeInfluence(g, icfg), top)

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"traders": ranked})
			}
			for i, r := range ranked {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d. trader %-8s %.4f\n", i+1, r.ID, r.Score)
			}
			return nil
		},
	}
	cmd.Flags().Int("top", 10, "Number of traders to show (0 for all)")
	cmd.Flags().Float64("damping", network.DefaultInfluenceConfig().DampingFactor, "PageRank damping factor")
	return cmd
}
