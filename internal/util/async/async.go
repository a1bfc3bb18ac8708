// Package async provides utilities for parallel task execution.
//
// Independent actions within one reconciliation rank run through
// RunAll: every task is started, every task is waited on, and every
// failure is collected so an operator sees the full set of problems
// from one cycle instead of just the first.
package async

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunAll executes all tasks in parallel and waits for every one to
// complete. Failures are collected in task order and returned as a
// single multierror; a nil return means every task succeeded.
//
// Cancellation is checked once up front: tasks already started are not
// interrupted mid-action, matching the between-actions cancellation
// contract of the orchestrator.
func RunAll(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	errs := make([]error, len(tasks))
	done := make(chan struct{}, len(tasks))

	for i, task := range tasks {
		go func(i int, task Task) {
			if err := task.Func(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", task.Name, err)
			}
			done <- struct{}{}
		}(i, task)
	}

	for range tasks {
		<-done
	}

	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
