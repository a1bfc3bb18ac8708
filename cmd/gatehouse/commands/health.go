package commands

import (
	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/cmd/gatehouse/handlers"
)

// Health returns the command for running one fleet health pass.
func Health() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run one worker fleet health pass",
		Long: `Run one pass of the worker fleet state machine.

Joining members that came up are promoted, members unobservable past
the grace period are replaced, and completed drains are deprovisioned.
Typically run on a schedule.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Health(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: gatehouse.yaml)")

	return cmd
}
