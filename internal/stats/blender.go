package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"pulseboard/internal/metrics"
	"pulseboard/internal/source"
	"pulseboard/internal/telemetry"
)

// Blender answers statistics queries by splitting the requested window at
// the live backend's retention cutoff: the part older than the cutoff is
// read from the long-retention rollup store, the part newer than it from
// the live backend (normalized here). One failing side degrades to an
// empty partial; both sides failing fails the call.
type Blender struct {
	Live      source.Live
	Archive   source.Aggregate
	Retention time.Duration
	Logger    *slog.Logger

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

func NewBlender(live source.Live, archive source.Aggregate, retention time.Duration, logger *slog.Logger) *Blender {
	return &Blender{Live: live, Archive: archive, Retention: retention, Logger: logger}
}

func (b *Blender) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Blender) Blend(ctx context.Context, q metrics.MetricQuery) (metrics.StatisticsResult, error) {
	if err := q.Validate(); err != nil {
		return metrics.StatisticsResult{}, err
	}

	cutoff := b.now().Add(-b.Retention)
	wantArchive := q.Start.Before(cutoff)
	wantLive := q.End.After(cutoff)

	var (
		wg            sync.WaitGroup
		archivePoints []metrics.DataPoint
		livePoints    []metrics.DataPoint
		archiveErr    error
		liveErr       error
	)

	if wantArchive {
		end := q.End
		if cutoff.Before(end) {
			end = cutoff
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			archivePoints, archiveErr = b.Archive.Query(ctx, q, q.Start, end)
		}()
	}
	if wantLive {
		start := q.Start
		if start.Before(cutoff) {
			start = cutoff
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			var samples []metrics.RawSample
			samples, liveErr = b.Live.Query(ctx, q, start, q.End)
			if liveErr != nil {
				return
			}
			livePoints, liveErr = Normalize(samples, q.Period, q.Aggregation)
		}()
	}
	wg.Wait()

	err := ctx.Err()
	if err != nil {
		return metrics.StatisticsResult{}, err
	}

	archiveOK := wantArchive && archiveErr == nil
	liveOK := wantLive && liveErr == nil
	if wantArchive && archiveErr != nil {
		telemetry.BlendPartialFailures.Inc()
		b.Logger.Warn("archive fetch failed, degrading",
			slog.String("metric", string(q.MetricType)),
			slog.String("error", archiveErr.Error()))
	}
	if wantLive && liveErr != nil {
		telemetry.BlendPartialFailures.Inc()
		b.Logger.Warn("live fetch failed, degrading",
			slog.String("metric", string(q.MetricType)),
			slog.String("error", liveErr.Error()))
	}
	if !archiveOK && !liveOK {
		if wantArchive || wantLive {
			return metrics.StatisticsResult{}, fmt.Errorf("%w: all metric sources failed", metrics.ErrUpstreamUnavailable)
		}
	}

	var points []metrics.DataPoint
	tag := metrics.SourcePrometheus
	switch {
	case archiveOK && liveOK:
		points = append(append(points, archivePoints...), livePoints...)
		tag = metrics.SourceMixed
	case archiveOK:
		points = archivePoints
		tag = metrics.SourcePostgres
	case liveOK:
		points = livePoints
	}
	if points == nil {
		points = []metrics.DataPoint{}
	}
	sortPoints(points)
	points = mergeDuplicateBuckets(points, q.Aggregation)

	telemetry.BlendRequests.WithLabelValues(string(tag)).Inc()
	return metrics.StatisticsResult{
		MetricType:  q.MetricType,
		Period:      q.Period,
		Aggregation: q.Aggregation,
		DataSource:  tag,
		Points:      points,
	}, nil
}

var mergedValue = map[metrics.AggregationType]func(a, b metrics.DataPoint) float64{
	metrics.AggAvg: func(a, b metrics.DataPoint) float64 {
		total := a.SampleCount + b.SampleCount
		if total == 0 {
			return a.Value
		}
		return (a.Value*float64(a.SampleCount) + b.Value*float64(b.SampleCount)) / float64(total)
	},
	metrics.AggSum:   func(a, b metrics.DataPoint) float64 { return a.Value + b.Value },
	metrics.AggCount: func(a, b metrics.DataPoint) float64 { return a.Value + b.Value },
	metrics.AggMin:   func(a, b metrics.DataPoint) float64 { return math.Min(a.Value, b.Value) },
	metrics.AggMax:   func(a, b metrics.DataPoint) float64 { return math.Max(a.Value, b.Value) },
}

// mergeDuplicateBuckets collapses adjacent points that share a bucket
// timestamp. The retention cutoff is an arbitrary instant, so the bucket
// it lands in can come back once from each side of the split; the two
// half-buckets are combined into one point here.
func mergeDuplicateBuckets(points []metrics.DataPoint, agg metrics.AggregationType) []metrics.DataPoint {
	merge, ok := mergedValue[agg]
	if !ok || len(points) < 2 {
		return points
	}
	out := make([]metrics.DataPoint, 0, len(points))
	out = append(out, points[0])
	for _, p := range points[1:] {
		last := &out[len(out)-1]
		if p.Timestamp != last.Timestamp {
			out = append(out, p)
			continue
		}
		last.Value = merge(*last, p)
		if p.MinValue < last.MinValue {
			last.MinValue = p.MinValue
		}
		if p.MaxValue > last.MaxValue {
			last.MaxValue = p.MaxValue
		}
		last.SampleCount += p.SampleCount
	}
	return out
}

// sortPoints orders points ascending by timestamp. Formatted timestamps
// parse back to a comparable instant because every point in one result
// shares the same layout and location.
func sortPoints(points []metrics.DataPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		ti, erri := time.Parse(metrics.PointTimeLayout, points[i].Timestamp)
		tj, errj := time.Parse(metrics.PointTimeLayout, points[j].Timestamp)
		if erri != nil || errj != nil {
			return points[i].Timestamp < points[j].Timestamp
		}
		return ti.Before(tj)
	})
}
