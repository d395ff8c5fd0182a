package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tradernet/internal/display"
	"github.com/nvandessel/tradernet/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			rs, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer rs.Close()

			runs, err := rs.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if limit > 0 && limit < len(runs) {
				runs = runs[:limit]
			}

			if jsonOut {
				if runs == nil {
					runs = []store.RunSummary{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": runs, "count": len(runs)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), display.RunList(runs))
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "Show at most N runs")
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			table, _ := cmd.Flags().GetInt("table")

			run, err := loadRun(cmd, args[0])
			if err != nil {
				return err
			}
			return printRun(cmd, run, jsonOut, table)
		},
	}
	cmd.Flags().Int("table", 0, "Also print the last N steps")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			rs, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer rs.Close()

			if err := rs.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", args[0])
			return nil
		},
	}
}

// loadRun opens the configured store and fetches one run.
func loadRun(cmd *cobra.Command, id string) (*store.Run, error) {
	e, err := loadEnv(cmd)
	if err != nil {
		return nil, err
	}
	defer e.close()

	rs, err := e.openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	return rs.GetRun(cmd.Context(), id)
}
