// Package telemetry exposes the service's own operational metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BlendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_blend_requests_total",
			Help: "Blended statistics queries by resulting data source tag",
		},
		[]string{"data_source"},
	)

	BlendPartialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_blend_partial_failures_total",
			Help: "Blend sub-fetches that failed and were degraded to an empty partial",
		},
	)

	SchedulerFirings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_scheduler_firings_total",
			Help: "Completed alert scheduler firings",
		},
	)

	SchedulerSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_scheduler_skipped_total",
			Help: "Scheduler ticks skipped because the previous firing was still running",
		},
	)

	RulesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_rules_evaluated_total",
			Help: "Alert rules evaluated",
		},
	)

	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_alerts_triggered_total",
			Help: "Alert history records created, by severity",
		},
		[]string{"severity"},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_notification_failures_total",
			Help: "Notification dispatches that reported failure",
		},
	)

	SnapshotCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_snapshot_cache_hits_total",
			Help: "Metric snapshot reads served from cache",
		},
	)

	SnapshotCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_snapshot_cache_misses_total",
			Help: "Metric snapshot reads that went to the live backend",
		},
	)
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
