package orchestrate

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gatehouse-dev/gatehouse/internal/fleet"
	"github.com/gatehouse-dev/gatehouse/internal/platform/hcloud"
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
)

type noAssignments struct{}

func (noAssignments) ActiveAssignments(context.Context, string) (int, error) { return 0, nil }

var _ = ginkgo.Describe("Cluster lifecycle", func() {
	var (
		ctx          context.Context
		provider     *hcloud.FakeProvider
		store        *state.MemoryStore
		orchestrator *Orchestrator
		topo         *topology.Topology
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		provider = hcloud.NewFakeProvider()
		store = state.NewMemoryStore()
		orchestrator = New(Config{
			Provider: provider,
			Store:    store,
			Images:   staticImages{},
			Log:      logr.Discard(),
			LockTTL:  time.Minute,
			LockWait: 10 * time.Millisecond,
		})

		topo = &topology.Topology{
			ClusterName:  "prod",
			Location:     "fsn1",
			Gateway:      topology.NodeGroup{ServerType: "cx22", Image: "hardened-gw-v3"},
			ControlPlane: topology.NodeGroup{ServerType: "cx32", Image: "cluster-node-v3"},
			Workers:      topology.NodeGroup{Count: 2, ServerType: "cx32", Image: "cluster-node-v3"},
			Monitoring:   topology.NodeGroup{ServerType: "cx22", Image: "cluster-node-v3"},
			Policy: topology.Policy{Rules: []topology.Rule{
				{Name: "ssh-in", Source: "external", Destination: topology.RoleGateway, Port: "22"},
			}},
		}
		Expect(topo.ApplyDefaults()).To(Succeed())
	})

	newFleet := func() *fleet.Controller {
		return fleet.New(fleet.Config{
			Topology:  topo,
			Provider:  provider,
			Store:     store,
			Workloads: noAssignments{},
			Images:    staticImages{},
			Log:       logr.Discard(),
		})
	}

	ginkgo.It("provisions, scales and tears down a cluster", func() {
		ginkgo.By("applying the desired topology")
		report, err := orchestrator.Apply(ctx, topo)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Succeeded).To(HaveLen(10))
		Expect(provider.Servers).To(HaveLen(8))

		ginkgo.By("promoting the initial workers through a health pass")
		warnings, err := newFleet().Tick(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(warnings).To(BeEmpty())

		st, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Resources["prod-worker-1"].Status).To(Equal(state.StatusHealthy))
		Expect(st.Resources["prod-worker-2"].Status).To(Equal(state.StatusHealthy))

		ginkgo.By("growing the fleet without touching other ranks")
		mutationsBefore := provider.MutationCount()
		Expect(newFleet().Scale(ctx, 4)).To(Succeed())
		Expect(provider.MutationCount()).To(Equal(mutationsBefore + 2))
		Expect(provider.Servers).To(HaveKey("prod-worker-3"))
		Expect(provider.Servers).To(HaveKey("prod-worker-4"))

		ginkgo.By("tearing down with a confirmed two-phase destroy")
		_, token, err := orchestrator.DestroyPlan(ctx)
		Expect(err).NotTo(HaveOccurred())
		report, err = orchestrator.Destroy(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Failed).To(BeEmpty())
		Expect(provider.Servers).To(BeEmpty())
		Expect(provider.Networks).To(BeEmpty())

		_, err = store.Load(ctx)
		Expect(err).To(MatchError(state.ErrNotFound))
	})

	ginkgo.It("resumes a partially failed apply without repeating completed work", func() {
		provider.FailOn["prod-monitoring-2"] = errors.New("provider rejected the create")

		ginkgo.By("failing on the monitoring rank")
		report, err := orchestrator.Apply(ctx, topo)
		Expect(err).To(HaveOccurred())
		Expect(report.Failed).To(ConsistOf("create monitoring prod-monitoring-2"))

		ginkgo.By("retrying with the same topology")
		report, err = orchestrator.Apply(ctx, topo)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Succeeded).To(ConsistOf("create monitoring prod-monitoring-2"))
	})

	ginkgo.It("keeps a changed confirmation token from authorizing teardown", func() {
		_, err := orchestrator.Apply(ctx, topo)
		Expect(err).NotTo(HaveOccurred())

		_, token, err := orchestrator.DestroyPlan(ctx)
		Expect(err).NotTo(HaveOccurred())

		ginkgo.By("scaling the fleet between plan and confirm")
		Expect(newFleet().Scale(ctx, 3)).To(Succeed())

		_, err = orchestrator.Destroy(ctx, token)
		Expect(err).To(HaveOccurred())
		Expect(provider.Networks).To(HaveKey("prod-net"))
	})
})
