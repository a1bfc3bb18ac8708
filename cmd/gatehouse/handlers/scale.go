package handlers

import (
	"context"
	"fmt"
)

// Scale moves the worker fleet toward the target size. Growth adds
// joining members at the lowest free indices; shrinking marks the
// oldest healthy members draining and leaves their removal to the
// health pass, so serving capacity never dips below the target.
func Scale(ctx context.Context, configPath string, target int) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}

	rt.log.Info("scaling worker fleet", "cluster", rt.topo.ClusterName, "target", target)

	if err := rt.fleet().Scale(ctx, target); err != nil {
		return fmt.Errorf("scale failed: %w", err)
	}

	fmt.Printf("Worker fleet of %s scaling to %d.\n", rt.topo.ClusterName, target)
	fmt.Println("Run 'gatehouse health' to advance joining and draining members.")
	return nil
}
