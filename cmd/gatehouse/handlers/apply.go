package handlers

import (
	"context"
	"fmt"

	"github.com/gatehouse-dev/gatehouse/internal/metrics"
)

// Apply reconciles the cluster to the topology file.
//
// The workflow:
//  1. Loads, defaults, and validates the topology
//  2. Sources credentials from the environment
//  3. Connects the remote state store
//  4. Runs the lifecycle orchestrator, which plans and executes the
//     difference between desired and recorded state
//
// On a partial failure the per-action report is still printed so the
// operator sees exactly which resources need a retry.
func Apply(ctx context.Context, configPath, metricsAddr string) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		metricsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := metrics.Serve(metricsCtx, metricsAddr); err != nil {
				rt.log.Error(err, "metrics listener failed", "addr", metricsAddr)
			}
		}()
	}

	rt.log.Info("applying topology", "cluster", rt.topo.ClusterName)

	report, err := rt.orchestrator().Apply(ctx, rt.topo)
	if report != nil {
		fmt.Println(renderReport("apply", rt.topo.ClusterName, report))
	}
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}
	return nil
}
