package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tradernet/internal/export"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export the steps of a run as JSONL or Arrow",
		Long: `Write the per-step prices and state counts of a stored run.

Examples:
  tradernet export <id>                                # JSONL to stdout
  tradernet export <id> --format arrow -o prices.arrow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if format == export.FormatArrow && output == "" {
				return fmt.Errorf("arrow output requires --output")
			}

			if output != "" {
				e, err := loadEnv(cmd)
				if err != nil {
					return err
				}
				err = checkPath(e.cfg, output)
				e.close()
				if err != nil {
					return fmt.Errorf("output path rejected: %w", err)
				}
			}

			run, err := loadRun(cmd, args[0])
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := export.Write(w, format, run.Steps); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d steps to %s\n", len(run.Steps), output)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "jsonl", "Output format: jsonl or arrow")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}
