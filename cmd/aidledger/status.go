package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query node status",
	Example: `  aidledger status
  aidledger status --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().Status(cmd.Context())
		if err != nil {
			return err
		}
		return printOut(cmd, status, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\nProgram: %s\nAccounts: %d\nEvents: %d\nVersion: %s (API %s)\nUptime: %ds\n",
				status.Status, status.ProgramID, status.Accounts, status.Events, status.Version, status.APIVersion, status.Uptime)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query node health summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := newClient().NodeHealth(cmd.Context())
		if err != nil {
			return err
		}
		return printOut(cmd, health, func() {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Node Health: %s\n", health.Status)
			fmt.Fprintf(w, "Uptime: %ds\n", health.Metrics.UptimeSeconds)
			fmt.Fprintf(w, "Accounts: %d\n", health.Metrics.Accounts)
			fmt.Fprintf(w, "Events: %d\n", health.Metrics.Events)
			fmt.Fprintf(w, "Stream Subscribers: %d\n", health.Metrics.Subscribers)
			fmt.Fprintf(w, "CPU Load: %.2f%%\n", health.Metrics.CPULoadPercent)
			fmt.Fprintf(w, "Memory Usage: %.2f MB\n", health.Metrics.MemoryMB)
			fmt.Fprintf(w, "Disk Free: %.2f MB\n", health.Metrics.DiskFreeMB)
		})
	},
}

var livenessCmd = &cobra.Command{
	Use:   "liveness",
	Short: "Check node liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		alive, err := newClient().Liveness(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Liveness: %v\n", alive)
		return nil
	},
}

var readinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "Check node readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		ready, err := newClient().Readiness(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Readiness: %v\n", ready)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(livenessCmd)
	rootCmd.AddCommand(readinessCmd)
}
