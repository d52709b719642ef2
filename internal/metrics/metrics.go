// Package metrics defines the Prometheus metrics shared by the identity and
// profile services. Metrics register with the default registry on import and
// are exposed by promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parley"

// ── Broker metrics ────────────────────────────────────────────────────────────

// EventsPublishedTotal counts publish attempts.
// Labels:
//   - queue: destination queue
//   - result: "ok" or "error"
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of identity events published, by queue and result.",
	},
	[]string{"queue", "result"},
)

// EventsConsumedTotal counts deliveries by how they were settled.
// Labels:
//   - queue: source queue
//   - outcome: "ack" or "nack"
var EventsConsumedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_consumed_total",
		Help:      "Total number of deliveries settled by consumers.",
	},
	[]string{"queue", "outcome"},
)

// EventsDedupTotal counts deduplication decisions.
// Label:
//   - result: "hit" (duplicate, skipped) or "miss"
var EventsDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dedup_total",
		Help:      "Total number of deduplication checks, labelled by result (hit/miss).",
	},
	[]string{"result"},
)

// EventHandlingDuration measures one delivery from receipt to settlement.
var EventHandlingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_handling_duration_seconds",
		Help:      "Duration of event handling from delivery to ack or nack.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"queue"},
)

// ConsumerRestartsTotal counts consumer loop restarts after a setup failure
// or a closed channel.
var ConsumerRestartsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_restarts_total",
		Help:      "Total number of consumer loop restarts.",
	},
	[]string{"queue"},
)

// ── Profile metrics ───────────────────────────────────────────────────────────

// ProfileSyncTotal counts profile sync results.
// Labels:
//   - kind: event kind (e.g. "user.registered")
//   - status: "applied", "skipped" or "failed"
var ProfileSyncTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profile_sync_total",
		Help:      "Total number of identity events applied to profiles, by result.",
	},
	[]string{"kind", "status"},
)

// ── Identity metrics ──────────────────────────────────────────────────────────

// OutboxRelayedTotal counts outbox rows handled by the relay.
// Label:
//   - result: "published", "retry" or "failed"
var OutboxRelayedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_relayed_total",
		Help:      "Total number of outbox messages handled by the relay.",
	},
	[]string{"result"},
)

// GateRejectionsTotal counts requests refused by the revocation gate.
// Label:
//   - reason: "missing_token" or "invalid_token"
var GateRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_rejections_total",
		Help:      "Total number of requests rejected by the revocation gate.",
	},
	[]string{"reason"},
)

// HTTPRequestDuration measures handled requests.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by method and status code.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "status"},
)
