// Package metrics provides application-level Prometheus collectors.
// Collectors register with the default registry and are exported by the
// /metrics endpoint of the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle and ingestion collectors.
var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_cycles_total",
		Help: "Ingestion cycles completed, by status",
	}, []string{"status"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_cycle_duration_seconds",
		Help:    "Duration of a full ingest, detect and alert cycle",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	SourceRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_source_runs_total",
		Help: "Source adapter runs, by source and status",
	}, []string{"source", "status"})

	SourceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_source_duration_seconds",
		Help:    "Duration of a single source adapter run",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"source"})

	EntitiesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_entities_ingested_total",
		Help: "Normalized entities produced by source adapters",
	}, []string{"source"})
)

// Detection and alerting collectors.
var (
	ChangesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_changes_detected_total",
		Help: "Change records produced by the detector, by change type and level",
	}, []string{"change_type", "level"})

	AlertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_alerts_sent_total",
		Help: "Alerts delivered to the notification channel",
	})

	AlertsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_alerts_failed_total",
		Help: "Alert deliveries that failed",
	})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_alerts_suppressed_total",
		Help: "Alert candidates skipped before delivery, by reason",
	}, []string{"reason"})

	DigestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_digests_sent_total",
		Help: "Weekly digests delivered",
	})
)

// Inc increments the given counter by 1.
func Inc(counter prometheus.Counter) { counter.Inc() }
