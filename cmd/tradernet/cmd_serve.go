package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tradernet/internal/api"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve stored runs and live simulations over HTTP.

Endpoints:
  GET    /v1/health
  GET    /v1/runs
  POST   /v1/runs                   body: {"nodes":..,"steps":..,"seed":..}
  GET    /v1/runs/{id}
  DELETE /v1/runs/{id}
  GET    /v1/runs/{id}/steps        ?format=jsonl|arrow
  GET    /v1/runs/{id}/graph
  GET    /v1/runs/{id}/influence    ?top=N
  GET    /v1/stream                 websocket, ?nodes=..&steps=..&seed=..`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if cmd.Flags().Changed("addr") {
				addr, _ := cmd.Flags().GetString("addr")
				host, port, err := splitAddr(addr)
				if err != nil {
					return err
				}
				e.cfg.Server.Host, e.cfg.Server.Port = host, port
			}

			ctx, stop := withSignals(cmd.Context())
			defer stop()

			rs, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			defer rs.Close()

			srv, err := api.NewServer(api.Config{
				Base:   e.cfg,
				Store:  rs,
				Logger: e.logger,
				Debug:  e.cfg.Logging.Level == "debug" || e.cfg.Logging.Level == "trace",
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "tradernet API on http://%s\n", e.cfg.Server.Addr())
			return srv.ListenAndServe(ctx, e.cfg.Server.Addr())
		},
	}
	cmd.Flags().String("addr", "", "Listen address host:port (default from config)")
	return cmd
}

// splitAddr parses host:port.
func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in --addr %q", addr)
	}
	return host, port, nil
}
