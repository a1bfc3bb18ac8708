package commands

import (
	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/cmd/gatehouse/handlers"
)

// Plan returns the command for previewing what apply would change.
func Plan() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the changes apply would make",
		Long: `Show the actions apply would execute, without mutating anything.

The recorded state is read but never written, and no lock is taken.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: gatehouse.yaml)")

	return cmd
}
