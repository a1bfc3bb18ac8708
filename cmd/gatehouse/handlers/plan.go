package handlers

import (
	"context"
	"fmt"
)

// Plan prints the actions an apply would execute without mutating
// anything. The recorded state is read but never written.
func Plan(ctx context.Context, configPath string) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}

	plan, err := rt.orchestrator().PlanOnly(ctx, rt.topo)
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}

	fmt.Println(renderPlan(rt.topo.ClusterName, plan, false))
	return nil
}
