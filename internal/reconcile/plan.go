// Package reconcile computes the minimal ordered action set that
// moves observed infrastructure to the desired topology.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
)

// Verb is what an action does to its resource.
type Verb string

const (
	VerbCreate  Verb = "create"
	VerbUpdate  Verb = "update"
	VerbDestroy Verb = "destroy"
)

// Rank is the dependency position of an action. Apply executes ranks
// in ascending order; teardown in descending order. Actions within
// one rank are independent and may run in parallel.
type Rank int

const (
	RankNetwork Rank = iota
	RankSecurityPolicy
	RankGateway
	RankControlPlane
	RankWorker
	RankMonitoring
)

var rankNames = map[Rank]string{
	RankNetwork:        "network",
	RankSecurityPolicy: "security-policy",
	RankGateway:        "gateway",
	RankControlPlane:   "control-plane",
	RankWorker:         "worker",
	RankMonitoring:     "monitoring",
}

func (r Rank) String() string {
	if name, ok := rankNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rank(%d)", int(r))
}

// Action is one planned mutation.
type Action struct {
	Verb Verb
	Rank Rank
	// NodeID is the logical identifier, which doubles as the provider
	// resource name.
	NodeID string
	Kind   state.ResourceKind
	Group  topology.Role
	// Index is the 1-based node index within its group, zero for
	// non-server resources.
	Index int
	// SpecHash is the desired spec fingerprint, empty for destroys.
	SpecHash string
}

func (a Action) String() string {
	return fmt.Sprintf("%s %s %s", a.Verb, a.Rank, a.NodeID)
}

// Plan is an ordered action set.
type Plan struct {
	Actions []Action
}

// Empty reports whether the plan contains no actions.
func (p *Plan) Empty() bool { return len(p.Actions) == 0 }

// Ranks returns the plan's actions grouped by rank, in execution
// order. Reversed is used for teardown.
func (p *Plan) Ranks(reversed bool) [][]Action {
	byRank := make(map[Rank][]Action)
	for _, a := range p.Actions {
		byRank[a.Rank] = append(byRank[a.Rank], a)
	}

	ranks := make([]Rank, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if reversed {
			return ranks[i] > ranks[j]
		}
		return ranks[i] < ranks[j]
	})

	out := make([][]Action, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, byRank[r])
	}
	return out
}

// Counts returns the number of actions per verb.
func (p *Plan) Counts() map[string]int {
	counts := make(map[string]int)
	for _, a := range p.Actions {
		counts[string(a.Verb)]++
	}
	return counts
}

// Fingerprint identifies the plan's exact action set. The destroy
// confirmation token is the fingerprint of the rendered teardown
// plan, so a stale confirmation can never authorize a different
// teardown.
func (p *Plan) Fingerprint() string {
	var b strings.Builder
	for _, a := range p.Actions {
		fmt.Fprintf(&b, "%s|%d|%s|%s\n", a.Verb, a.Rank, a.NodeID, a.SpecHash)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// verbOrder puts creates before updates before destroys within a rank.
var verbOrder = map[Verb]int{VerbCreate: 0, VerbUpdate: 1, VerbDestroy: 2}

func (p *Plan) sort() {
	sort.Slice(p.Actions, func(i, j int) bool {
		a, b := p.Actions[i], p.Actions[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if verbOrder[a.Verb] != verbOrder[b.Verb] {
			return verbOrder[a.Verb] < verbOrder[b.Verb]
		}
		return a.NodeID < b.NodeID
	})
}
