// Package errdefs defines the controller's error taxonomy.
//
// Every failure surfaced by the orchestrator, reconciler, fleet
// controller or state store is classified into one of the types below.
// The CLI maps the classification to an exit status: retryable errors
// (ObservationError, LockContention) signal the caller to back off and
// retry; everything else is fatal for the current invocation.
package errdefs

import (
	"errors"
	"fmt"
	"time"
)

// InputError indicates a malformed topology or request. It is always
// raised before any resource mutation.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return "invalid input: " + e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// Input wraps err as an InputError.
func Input(err error) error {
	if err == nil {
		return nil
	}
	return &InputError{Err: err}
}

// Inputf formats a new InputError.
func Inputf(format string, args ...any) error {
	return &InputError{Err: fmt.Errorf(format, args...)}
}

// ObservationError indicates the observed cluster state could not be
// read. Reconciliation must never proceed on stale or partial
// observation, so the operation fails fast and is retryable.
type ObservationError struct {
	Err error
}

func (e *ObservationError) Error() string { return "observation failed: " + e.Err.Error() }
func (e *ObservationError) Unwrap() error { return e.Err }

// Observation wraps err as an ObservationError.
func Observation(err error) error {
	if err == nil {
		return nil
	}
	return &ObservationError{Err: err}
}

// ProvisioningError indicates a single plan action failed. Sibling
// parallel actions continue; failures are collected per cycle.
type ProvisioningError struct {
	Node string // logical node identifier
	Verb string // create, update, destroy
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s %s: %v", e.Verb, e.Node, e.Err)
}
func (e *ProvisioningError) Unwrap() error { return e.Err }

// PolicyViolation indicates a security policy would break the
// single-entry-point invariant. Always fatal, never auto-corrected.
type PolicyViolation struct {
	Rule   string
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation in rule %q: %s", e.Rule, e.Reason)
}

// LockContention indicates another operation holds the cluster lock.
type LockContention struct {
	Holder string
}

func (e *LockContention) Error() string {
	if e.Holder == "" {
		return "cluster lock held by another operation"
	}
	return fmt.Sprintf("cluster lock held by %s", e.Holder)
}

// DrainTimeout indicates a fleet member failed to drain within the
// configured window and was force-deprovisioned. It is surfaced as a
// warning, not a failure of the overall operation.
type DrainTimeout struct {
	Member  string
	Elapsed time.Duration
}

func (e *DrainTimeout) Error() string {
	return fmt.Sprintf("member %s force-deprovisioned after draining for %s", e.Member, e.Elapsed.Round(time.Second))
}

// IsInput reports whether err is an InputError.
func IsInput(err error) bool {
	var t *InputError
	return errors.As(err, &t)
}

// IsObservation reports whether err is an ObservationError.
func IsObservation(err error) bool {
	var t *ObservationError
	return errors.As(err, &t)
}

// IsProvisioning reports whether err is a ProvisioningError.
func IsProvisioning(err error) bool {
	var t *ProvisioningError
	return errors.As(err, &t)
}

// IsPolicyViolation reports whether err is a PolicyViolation.
func IsPolicyViolation(err error) bool {
	var t *PolicyViolation
	return errors.As(err, &t)
}

// IsLockContention reports whether err is a LockContention.
func IsLockContention(err error) bool {
	var t *LockContention
	return errors.As(err, &t)
}

// IsDrainTimeout reports whether err is a DrainTimeout.
func IsDrainTimeout(err error) bool {
	var t *DrainTimeout
	return errors.As(err, &t)
}

// Retryable reports whether the caller may retry the whole operation.
func Retryable(err error) bool {
	return IsObservation(err) || IsLockContention(err)
}
