package cli

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	clusterName string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "podfleet",
	Short: "Podfleet - A lightweight workload orchestrator",
	Long: `Podfleet schedules pods and deployments onto a fleet of machines.

Each machine runs podfleet-agent. This CLI refreshes the cluster state from the
agents, picks the least loaded node for every resource and dispatches it there
over SSH or HTTP.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default is $HOME/.podfleet/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(&clusterName, "cluster", "c", "", "cluster to use (default is current_cluster)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// IsVerbose returns whether verbose mode is enabled
func IsVerbose() bool {
	return verbose
}
