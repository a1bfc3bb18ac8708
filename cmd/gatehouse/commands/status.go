package commands

import (
	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/cmd/gatehouse/handlers"
)

// Status returns the command for inspecting the recorded cluster state.
func Status() *cobra.Command {
	var configPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded cluster state",
		Long: `Show every recorded resource plus the tunnel route that reaches the
metrics endpoint through the gateway. Read-only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), configPath, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: gatehouse.yaml)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output state as JSON")

	return cmd
}
