// Package metrics holds the Prometheus collectors for the ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/rent-ledger/billing"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

const namespace = "rent_ledger"

var (
	// commitsTotal counts accepted commits.
	// Labels: origin (local, remote)
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "commits_total",
		Help:      "Total commits to the room collection",
	}, []string{"origin"})

	// roomsGauge is the size of the present collection.
	roomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "rooms",
		Help:      "Rooms in the present collection",
	})

	// remoteOps counts remote store calls.
	// Labels: op (fetch, push), result (ok, error, empty, overwrite)
	remoteOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "operations_total",
		Help:      "Remote store operations by result",
	}, []string{"op", "result"})

	// remoteLatency measures remote store call latency.
	// Labels: op
	remoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "latency_seconds",
		Help:      "Remote store call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"op"})

	// eventsPublished counts commit events sent to the broker.
	// Labels: result (ok, error)
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Commit events published to the broker",
	}, []string{"result"})
)

// =============================================================================
// Recording helpers
// =============================================================================

// ObserveCommit is a billing.CommitHook.
func ObserveCommit(ev billing.CommitEvent) {
	commitsTotal.WithLabelValues(string(ev.Origin)).Inc()
	roomsGauge.Set(float64(len(ev.Rooms)))
}

// SetRooms sets the room gauge, used once at startup.
func SetRooms(n int) {
	roomsGauge.Set(float64(n))
}

// RemoteOp records one remote store call.
func RemoteOp(op, result string, took time.Duration) {
	remoteOps.WithLabelValues(op, result).Inc()
	remoteLatency.WithLabelValues(op).Observe(took.Seconds())
}

// EventPublished records one broker publish.
func EventPublished(err error) {
	if err != nil {
		eventsPublished.WithLabelValues("error").Inc()
		return
	}
	eventsPublished.WithLabelValues("ok").Inc()
}
