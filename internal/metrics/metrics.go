// Package metrics exposes the controller's Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Apply and plan metrics
	applyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "orchestrator",
			Name:      "apply_total",
			Help:      "Total number of apply runs by result",
		},
		[]string{"cluster", "result"},
	)

	applyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gatehouse",
			Subsystem: "orchestrator",
			Name:      "apply_duration_seconds",
			Help:      "Duration of apply runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"cluster"},
	)

	planActions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gatehouse",
			Subsystem: "reconciler",
			Name:      "plan_actions",
			Help:      "Number of actions in the last computed plan by verb",
		},
		[]string{"cluster", "verb"},
	)

	// Fleet metrics
	fleetMembers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gatehouse",
			Subsystem: "fleet",
			Name:      "members",
			Help:      "Number of fleet members by status",
		},
		[]string{"cluster", "status"},
	)

	fleetDrainTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "fleet",
			Name:      "drain_timeouts_total",
			Help:      "Total number of members force-deprovisioned after a drain timeout",
		},
		[]string{"cluster"},
	)

	// State store metrics
	lockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "state",
			Name:      "lock_contention_total",
			Help:      "Total number of lock acquisition attempts that found the lock held",
		},
		[]string{"cluster"},
	)
)

func init() {
	prometheus.MustRegister(
		applyTotal,
		applyDuration,
		planActions,
		fleetMembers,
		fleetDrainTimeouts,
		lockContention,
	)
}

// RecordApply records one apply run.
func RecordApply(cluster, result string, duration time.Duration) {
	applyTotal.WithLabelValues(cluster, result).Inc()
	applyDuration.WithLabelValues(cluster).Observe(duration.Seconds())
}

// RecordPlanActions records the verb counts of a computed plan. Every
// verb is written so a verb absent from the latest plan reads zero
// instead of its previous value.
func RecordPlanActions(cluster string, counts map[string]int) {
	for _, verb := range []string{"create", "update", "destroy"} {
		planActions.WithLabelValues(cluster, verb).Set(float64(counts[verb]))
	}
}

// RecordFleetMembers records the current member count for one status.
func RecordFleetMembers(cluster, status string, n int) {
	fleetMembers.WithLabelValues(cluster, status).Set(float64(n))
}

// RecordDrainTimeout records a force-deprovisioned member.
func RecordDrainTimeout(cluster string) {
	fleetDrainTimeouts.WithLabelValues(cluster).Inc()
}

// RecordLockContention records a lock acquisition that found the lock held.
func RecordLockContention(cluster string) {
	lockContention.WithLabelValues(cluster).Inc()
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes the scrape endpoint on addr until the context is
// cancelled. The endpoint stays at a fixed local address so the
// gateway tunnel route to it survives fleet churn.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: Handler()}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics endpoint failed: %w", err)
	}
	return nil
}
