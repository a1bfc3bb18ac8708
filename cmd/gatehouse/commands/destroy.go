package commands

import (
	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/cmd/gatehouse/handlers"
)

// Destroy returns the command for tearing the cluster down.
//
// Teardown is two-phase: the first run prints the plan and a
// confirmation token, the second run executes it. On a terminal the
// confirmation is an interactive prompt instead.
func Destroy() *cobra.Command {
	var configPath string
	var confirmToken string
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down the cluster",
		Long: `Tear down every resource the cluster owns, in reverse dependency order.

The teardown plan is confirmed before execution. Any change to the
cluster between planning and confirming invalidates the token, forcing
a fresh look at the plan.

Examples:
  # Interactive teardown
  gatehouse destroy

  # Non-interactive, two invocations
  gatehouse destroy
  gatehouse destroy --confirm <token>

  # Non-interactive, single invocation (automation only)
  gatehouse destroy --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), configPath, confirmToken, autoApprove)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: gatehouse.yaml)")
	cmd.Flags().StringVar(&confirmToken, "confirm", "", "Confirmation token from a previous destroy run")
	cmd.Flags().BoolVar(&autoApprove, "yes", false, "Skip confirmation (dangerous)")

	return cmd
}
