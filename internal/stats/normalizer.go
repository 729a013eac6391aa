package stats

import (
	"fmt"
	"sort"
	"time"

	"pulseboard/internal/metrics"
)

type bucket struct {
	start  time.Time
	values []float64
}

// Normalize groups unordered raw samples into period-wide buckets and
// computes the aggregate, min, max and sample count per bucket. Output is
// ordered ascending by bucket start. Empty input yields an empty slice.
func Normalize(samples []metrics.RawSample, period metrics.TimePeriod, agg metrics.AggregationType) ([]metrics.DataPoint, error) {
	if _, ok := period.BucketStart(time.Time{}); !ok {
		return nil, fmt.Errorf("%w: unknown time period %q", metrics.ErrInvalidArgument, period)
	}
	if _, err := aggregate(agg, []float64{0}); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []metrics.DataPoint{}, nil
	}

	buckets := map[int64]*bucket{}
	for _, s := range samples {
		start, _ := period.BucketStart(time.Unix(s.TimestampSeconds, 0))
		key := start.Unix()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{start: start}
			buckets[key] = b
		}
		b.values = append(b.values, s.Value)
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start.Before(ordered[j].start) })

	points := make([]metrics.DataPoint, 0, len(ordered))
	for _, b := range ordered {
		value, err := aggregate(agg, b.values)
		if err != nil {
			return nil, err
		}
		min, max := b.values[0], b.values[0]
		for _, v := range b.values[1:] {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		points = append(points, metrics.DataPoint{
			Timestamp:   b.start.Format(metrics.PointTimeLayout),
			Value:       value,
			MinValue:    min,
			MaxValue:    max,
			SampleCount: len(b.values),
		})
	}
	return points, nil
}

func aggregate(agg metrics.AggregationType, values []float64) (float64, error) {
	switch agg {
	case metrics.AggAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case metrics.AggSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case metrics.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case metrics.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	case metrics.AggCount:
		return float64(len(values)), nil
	default:
		return 0, fmt.Errorf("%w: unknown aggregation %q", metrics.ErrInvalidArgument, agg)
	}
}
