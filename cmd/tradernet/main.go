package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tradernet",
		Short: "Trader network market simulator",
		Long: `tradernet simulates a market of traders connected by a random trust network.

Every step each trader quotes a buy and a sell price shaped by its own noisy
view of the last price and by the positions of the traders it trusts. The
market clears at the price where buy and sell interest balance, and each
trader then decides to buy, hold or sell.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.tradernet/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newRunsCmd(),
		newShowCmd(),
		newDeleteCmd(),
		newExportCmd(),
		newGraphCmd(),
		newInfluenceCmd(),
		newConfigCmd(),
		newServeCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}
