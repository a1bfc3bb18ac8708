package handlers

import (
	"context"
	"fmt"
)

// Health runs one pass of the fleet state machine: promotes joining
// members that came up, replaces members that stayed unobservable past
// the grace period, and completes or force-finishes drains.
//
// Warnings are non-fatal conditions the operator should know about,
// like a drain that exceeded its timeout and was forced.
func Health(ctx context.Context, configPath string) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}

	warnings, err := rt.fleet().Tick(ctx)
	for _, warning := range warnings {
		fmt.Println(yellowStyle.Render(fmt.Sprintf("  warning: %v", warning)))
	}
	if err != nil {
		return fmt.Errorf("health pass failed: %w", err)
	}

	fmt.Printf("Health pass for %s complete (%d warnings).\n", rt.topo.ClusterName, len(warnings))
	return nil
}
