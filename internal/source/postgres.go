package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulseboard/internal/metrics"
)

// PostgresAggregateSource reads pre-rolled-up buckets from the
// metric_rollups table. A separate periodic job writes the rollups; this
// side only selects the column matching the requested aggregation.
type PostgresAggregateSource struct {
	Pool *pgxpool.Pool
}

func NewPostgresAggregateSource(pool *pgxpool.Pool) *PostgresAggregateSource {
	return &PostgresAggregateSource{Pool: pool}
}

var aggColumns = map[metrics.AggregationType]string{
	metrics.AggAvg:   "avg_value",
	metrics.AggSum:   "sum_value",
	metrics.AggMin:   "min_value",
	metrics.AggMax:   "max_value",
	metrics.AggCount: "sample_count::float8",
}

func (s *PostgresAggregateSource) Query(ctx context.Context, q metrics.MetricQuery, start, end time.Time) ([]metrics.DataPoint, error) {
	column, ok := aggColumns[q.Aggregation]
	if !ok {
		return nil, fmt.Errorf("%w: unknown aggregation %q", metrics.ErrInvalidArgument, q.Aggregation)
	}
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT bucket_ts, %s, min_value, max_value, sample_count
		FROM metric_rollups
		WHERE metric_type=$1 AND period=$2 AND application=$3
		  AND bucket_ts >= $4 AND bucket_ts < $5
		ORDER BY bucket_ts ASC`, column),
		string(q.MetricType), string(q.Period), q.Application, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metrics.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	points := []metrics.DataPoint{}
	for rows.Next() {
		var (
			bucketTS time.Time
			value    float64
			minValue float64
			maxValue float64
			count    int
		)
		if err := rows.Scan(&bucketTS, &value, &minValue, &maxValue, &count); err != nil {
			return nil, fmt.Errorf("%w: %v", metrics.ErrUpstreamUnavailable, err)
		}
		points = append(points, metrics.DataPoint{
			Timestamp:   bucketTS.Local().Format(metrics.PointTimeLayout),
			Value:       value,
			MinValue:    minValue,
			MaxValue:    maxValue,
			SampleCount: count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", metrics.ErrUpstreamUnavailable, err)
	}
	return points, nil
}
