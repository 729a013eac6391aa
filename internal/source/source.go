// Package source defines the metric backends the blender and the alert
// evaluator read from: a live high-resolution backend with short retention
// and a relational store of pre-rolled-up aggregates with long retention.
package source

import (
	"context"
	"time"

	"pulseboard/internal/metrics"
)

// Live is the short-retention, high-resolution backend.
type Live interface {
	// Query returns raw samples for the query's metric over [start, end].
	Query(ctx context.Context, q metrics.MetricQuery, start, end time.Time) ([]metrics.RawSample, error)
	// Snapshot returns the current named values for one application,
	// keyed by snapshot key (cpuUsage, heapUsage, tps, errorRate).
	// Metrics the backend cannot answer right now are simply absent.
	Snapshot(ctx context.Context, application string) (map[string]float64, error)
}

// Aggregate is the long-retention store of server-side rollups. Points come
// back already bucketed for the query's period.
type Aggregate interface {
	Query(ctx context.Context, q metrics.MetricQuery, start, end time.Time) ([]metrics.DataPoint, error)
}
