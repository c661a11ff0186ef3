// Package metrics provides Prometheus metrics for scalewatch.
// Counters cover the ingestion pipeline end to end: uplinks in, drops,
// fan-out, durable writes, and downlinks out.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ingestion ──────────────────────────────────────────────────────────────

// UplinksReceived counts uplink messages successfully normalized.
var UplinksReceived = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scalewatch",
	Name:      "uplinks_received_total",
	Help:      "Total uplink messages normalized into records.",
})

// UplinksDropped counts inbound messages dropped before normalization.
var UplinksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scalewatch",
	Name:      "uplinks_dropped_total",
	Help:      "Total inbound messages dropped.",
}, []string{"reason"})

// ─── Fan-out ────────────────────────────────────────────────────────────────

// BusDropped counts records dropped for slow live subscribers.
var BusDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scalewatch",
	Name:      "bus_dropped_total",
	Help:      "Total records dropped because a subscriber channel was full.",
})

// BusSubscribers tracks currently connected live subscribers.
var BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "scalewatch",
	Name:      "bus_subscribers",
	Help:      "Number of currently registered live subscribers.",
})

// ─── Durable log ────────────────────────────────────────────────────────────

// LogWriteFailures counts durable log appends that failed.
var LogWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scalewatch",
	Name:      "log_write_failures_total",
	Help:      "Total durable log appends that returned an error.",
})

// LogSchemaMismatch counts appends whose weight count differed from the
// column count fixed by the device's first persisted record.
var LogSchemaMismatch = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scalewatch",
	Name:      "log_schema_mismatch_total",
	Help:      "Total appends with a weight count differing from the device header.",
})

// ─── Downlink ───────────────────────────────────────────────────────────────

// DownlinksSent counts downlink commands acknowledged by the broker client.
var DownlinksSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scalewatch",
	Name:      "downlinks_sent_total",
	Help:      "Total downlink commands published.",
})

// DownlinksFailed counts downlink commands rejected or failed to publish.
var DownlinksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scalewatch",
	Name:      "downlinks_failed_total",
	Help:      "Total downlink commands that failed.",
}, []string{"reason"})
