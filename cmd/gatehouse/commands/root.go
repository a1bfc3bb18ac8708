// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing and flag binding. Command execution is delegated to handler
// functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the gatehouse CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Provision and guard single-entry-point clusters on Hetzner Cloud",
	}

	cmd.AddCommand(Plan())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Scale())
	cmd.AddCommand(Health())
	cmd.AddCommand(Status())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Version())

	return cmd
}
