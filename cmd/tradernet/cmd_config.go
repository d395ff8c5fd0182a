package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/tradernet/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tradernet configuration",
		Long: `View and initialize tradernet configuration.

Configuration is read from ~/.tradernet/config.yaml (or $TRADERNET_HOME),
then .env, then TRADERNET_* environment variables.

Examples:
  tradernet config show          # Effective settings
  tradernet config init          # Write the defaults to config.yaml
  tradernet config path          # Print the config file location`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
		newConfigPathCmd(),
	)
	return cmd
}

func configPath() (string, error) {
	home, err := config.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.yaml"), nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			redacted := *e.cfg
			redacted.Storage.DSN = e.cfg.Storage.RedactedDSN()

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), redacted)
			}

			out := cmd.OutOrStdout()
			sim := redacted.Simulation
			p := redacted.Params
			fmt.Fprintln(out, "Simulation:")
			fmt.Fprintf(out, "  simulation.nodes:             %d\n", sim.Nodes)
			fmt.Fprintf(out, "  simulation.edge_probability:  %g\n", sim.EdgeProbability)
			fmt.Fprintf(out, "  simulation.steps:             %d\n", sim.Steps)
			fmt.Fprintf(out, "  simulation.start_step:        %d\n", sim.StartStep)
			fmt.Fprintf(out, "  simulation.seed:              %s\n", seedString(sim.Seed))
			fmt.Fprintf(out, "  simulation.memory_length:     %d\n", sim.MemoryLength)
			fmt.Fprintf(out, "  simulation.workers:           %d\n", sim.Workers)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Trader parameters:")
			fmt.Fprintf(out, "  params.a:        %s\n", p.A)
			fmt.Fprintf(out, "  params.b:        %s\n", p.B)
			fmt.Fprintf(out, "  params.c:        %s\n", p.C)
			fmt.Fprintf(out, "  params.d:        %s\n", p.D)
			fmt.Fprintf(out, "  params.s:        %s\n", p.S)
			fmt.Fprintf(out, "  params.epsilon:  %s\n", p.Epsilon)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Logging:")
			fmt.Fprintf(out, "  logging.level:   %s\n", valueOrDefault(redacted.Logging.Level, "info"))
			fmt.Fprintf(out, "  logging.dir:     %s\n", valueOrDefault(redacted.Logging.Dir, "(data dir)"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Storage:")
			fmt.Fprintf(out, "  storage.driver:  %s\n", valueOrDefault(redacted.Storage.Driver, "sqlite"))
			fmt.Fprintf(out, "  storage.path:    %s\n", valueOrDefault(redacted.Storage.Path, "(default)"))
			fmt.Fprintf(out, "  storage.dsn:     %s\n", valueOrDefault(redacted.Storage.DSN, "(not set)"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Server:")
			fmt.Fprintf(out, "  server.addr:     %s\n", redacted.Server.Addr())
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			path, err := configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0600); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func seedString(seed uint64) string {
	if seed == 0 {
		return "0 (random per run)"
	}
	return fmt.Sprintf("%d", seed)
}
