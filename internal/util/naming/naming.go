// Package naming produces deterministic resource names.
//
// Logical node identifiers double as provider resource names, so every
// name must be stable across reconciliation cycles: the reconciler
// matches desired against observed purely by these identifiers.
package naming

import "fmt"

// Network returns the name of the cluster's isolated network.
func Network(cluster string) string {
	return cluster + "-net"
}

// Firewall returns the name of the cluster's firewall.
func Firewall(cluster string) string {
	return cluster + "-policy"
}

// Node returns the name of the idx-th node of a group.
// Indexes are 1-based: <cluster>-<group>-<idx>.
func Node(cluster, group string, idx int) string {
	return fmt.Sprintf("%s-%s-%d", cluster, group, idx)
}

// LockHolder returns the lock holder identity for an operation run.
func LockHolder(operation, runID string) string {
	return fmt.Sprintf("%s/%s", operation, runID)
}
