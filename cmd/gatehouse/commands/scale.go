package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/cmd/gatehouse/handlers"
)

// Scale returns the command for resizing the worker fleet.
func Scale() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "scale <count>",
		Short: "Resize the worker fleet",
		Long: `Resize the worker fleet to the target count.

Growth adds members immediately. Shrinking drains the oldest members
first and never reduces serving capacity below the target; the drained
members are removed by subsequent health passes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid worker count %q: %w", args[0], err)
			}
			return handlers.Scale(cmd.Context(), configPath, target)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: gatehouse.yaml)")

	return cmd
}
