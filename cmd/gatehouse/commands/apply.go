package commands

import (
	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/cmd/gatehouse/handlers"
)

// Apply returns the command for provisioning and converging clusters.
//
// Optional flags:
//
//	--config, -c: Path to the topology YAML file (default: gatehouse.yaml)
//	--metrics-listen: Address to serve Prometheus metrics on during the run
//
// Environment variables:
//
//	GATEHOUSE_HCLOUD_TOKEN: Hetzner Cloud API token (required)
//	GATEHOUSE_STATE_BUCKET: State store bucket (required)
//	GATEHOUSE_STATE_ACCESS_KEY, GATEHOUSE_STATE_SECRET_KEY: State store credentials
func Apply() *cobra.Command {
	var configPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the cluster",
		Long: `Create or update the cluster described by the topology file.

Apply computes the difference between the topology and the recorded
state, then executes it in dependency order: network, security policy,
gateway, control plane, workers, monitoring. A failed tier halts the
run; re-running apply resumes from the recorded progress.

Examples:
  # Converge using gatehouse.yaml in the current directory
  gatehouse apply

  # Converge a specific topology file
  gatehouse apply -c production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), configPath, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to topology file (default: gatehouse.yaml)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", "", "Serve Prometheus metrics on this address while applying")

	return cmd
}
