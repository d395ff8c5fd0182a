package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/tradernet/internal/config"
	"github.com/nvandessel/tradernet/internal/mcp"
	"github.com/nvandessel/tradernet/internal/store"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Expose simulation tools to MCP clients over stdio.

Tools: tradernet_simulate, tradernet_runs, tradernet_run, tradernet_influence.
Each run's steps are also readable as tradernet://runs/{id}/steps.jsonl.

Runs go to the configured store unless --ephemeral is set, in which case
they live only as long as the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ephemeral, _ := cmd.Flags().GetBool("ephemeral")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			var rs store.RunStore
			if ephemeral {
				rs = store.NewInMemoryRunStore()
			} else if rs, err = e.openStore(cmd.Context()); err != nil {
				return err
			}

			auditDir := ""
			if home, err := config.HomeDir(); err == nil {
				auditDir = home
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "tradernet",
				Version:  version,
				Base:     e.cfg,
				Store:    rs,
				AuditDir: auditDir,
				Logger:   e.logger,
			})
			if err != nil {
				rs.Close()
				return err
			}
			defer srv.Close()

			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().Bool("ephemeral", false, "Keep runs in memory only")
	return cmd
}
