package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gatehouse-dev/gatehouse/internal/policy"
)

// Status prints the recorded cluster state plus the tunnel route that
// reaches the metrics endpoint through the gateway. Read-only; no lock
// is taken.
func Status(ctx context.Context, configPath string, jsonOutput bool) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}

	st, err := rt.orchestrator().Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cluster state: %w", err)
	}

	if jsonOutput {
		b, err := json.MarshalIndent(st.Redacted(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode state: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}

	var metricsRoute string
	if route, err := policy.MetricsRoute(rt.topo); err == nil {
		metricsRoute = route.String()
	}

	fmt.Println(renderStatus(st, rt.topo.ClusterName, metricsRoute))
	return nil
}
