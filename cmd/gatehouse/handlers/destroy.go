package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Factory function variables for the confirmation flow - replaced in tests.
var (
	// stdoutIsTerminal reports whether an interactive confirmation can
	// be shown.
	stdoutIsTerminal = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	// confirmTeardown asks the operator to approve the teardown plan.
	confirmTeardown = func(ctx context.Context, clusterName string, resourceCount int) (bool, error) {
		var approved bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Destroy cluster %q?", clusterName)).
					Description(fmt.Sprintf("%d resources will be deleted. This cannot be undone.", resourceCount)).
					Value(&approved),
			),
		)
		if err := form.RunWithContext(ctx); err != nil {
			return false, fmt.Errorf("confirmation canceled: %w", err)
		}
		return approved, nil
	}
)

// Destroy tears the cluster down in two phases. Phase one computes the
// teardown plan and its confirmation token; phase two executes only
// when the token still matches, so a cluster change between phases
// forces the operator to re-read the plan.
//
// Confirmation is interactive on a terminal. Non-interactive callers
// pass --confirm with the token printed by phase one, or --yes.
func Destroy(ctx context.Context, configPath, confirmToken string, autoApprove bool) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	orch := rt.orchestrator()

	plan, token, err := orch.DestroyPlan(ctx)
	if err != nil {
		return fmt.Errorf("failed to plan teardown: %w", err)
	}
	if plan.Empty() {
		fmt.Println("Nothing to destroy.")
		return nil
	}

	fmt.Println(renderPlan(rt.topo.ClusterName, plan, true))

	if confirmToken == "" {
		switch {
		case autoApprove:
		case stdoutIsTerminal():
			approved, err := confirmTeardown(ctx, rt.topo.ClusterName, len(plan.Actions))
			if err != nil {
				return err
			}
			if !approved {
				fmt.Println("Aborted.")
				return nil
			}
		default:
			fmt.Printf("Re-run with --confirm %s to destroy the cluster.\n", token)
			return nil
		}
		confirmToken = token
	}

	report, err := orch.Destroy(ctx, confirmToken)
	if report != nil {
		fmt.Println(renderReport("destroy", rt.topo.ClusterName, report))
	}
	if err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	fmt.Printf("Cluster %s destroyed.\n", rt.topo.ClusterName)
	return nil
}
