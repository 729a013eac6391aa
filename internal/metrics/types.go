package metrics

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// PointTimeLayout is the display format shared by every DataPoint.
// All points in one result are formatted in the same location, so the
// formatted string stays sortable after a parse round-trip.
const PointTimeLayout = "2006-01-02 15:04:05"

type MetricType string

const (
	MetricCPUUsage      MetricType = "CPU_USAGE"
	MetricHeapUsage     MetricType = "HEAP_USAGE"
	MetricTPS           MetricType = "TPS"
	MetricErrorRate     MetricType = "ERROR_RATE"
	MetricDBConnections MetricType = "DB_CONNECTIONS"
	MetricDBSize        MetricType = "DB_SIZE"
)

type AggregationType string

const (
	AggAvg   AggregationType = "AVG"
	AggSum   AggregationType = "SUM"
	AggMin   AggregationType = "MIN"
	AggMax   AggregationType = "MAX"
	AggCount AggregationType = "COUNT"
)

type TimePeriod string

const (
	PeriodMinute TimePeriod = "MINUTE"
	PeriodHour   TimePeriod = "HOUR"
	PeriodDay    TimePeriod = "DAY"
	PeriodWeek   TimePeriod = "WEEK"
	PeriodMonth  TimePeriod = "MONTH"
)

type DataSource string

const (
	SourcePrometheus DataSource = "PROMETHEUS"
	SourcePostgres   DataSource = "POSTGRESQL"
	SourceMixed      DataSource = "MIXED"
)

type RawSample struct {
	TimestampSeconds int64
	Value            float64
}

type DataPoint struct {
	Timestamp   string  `json:"timestamp"`
	Value       float64 `json:"value"`
	MinValue    float64 `json:"minValue"`
	MaxValue    float64 `json:"maxValue"`
	SampleCount int     `json:"sampleCount"`
}

type MetricQuery struct {
	MetricType  MetricType
	Aggregation AggregationType
	Period      TimePeriod
	Start       time.Time
	End         time.Time
	Application string
}

type StatisticsResult struct {
	MetricType  MetricType      `json:"metricType"`
	Period      TimePeriod      `json:"timePeriod"`
	Aggregation AggregationType `json:"aggregationType"`
	DataSource  DataSource      `json:"dataSource"`
	Points      []DataPoint     `json:"dataPoints"`
}

func (q MetricQuery) Validate() error {
	if _, ok := metricInfo[q.MetricType]; !ok {
		return fmt.Errorf("%w: unknown metric type %q", ErrInvalidArgument, q.MetricType)
	}
	if !validAggregation(q.Aggregation) {
		return fmt.Errorf("%w: unknown aggregation %q", ErrInvalidArgument, q.Aggregation)
	}
	if _, ok := periodBuckets[q.Period]; !ok {
		return fmt.Errorf("%w: unknown time period %q", ErrInvalidArgument, q.Period)
	}
	if !q.Start.Before(q.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidArgument, q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}
	return nil
}

func validAggregation(agg AggregationType) bool {
	switch agg {
	case AggAvg, AggSum, AggMin, AggMax, AggCount:
		return true
	}
	return false
}

type bucketFunc func(time.Time) time.Time

var periodBuckets = map[TimePeriod]bucketFunc{
	PeriodMinute: func(t time.Time) time.Time { return t.Truncate(time.Minute) },
	PeriodHour:   func(t time.Time) time.Time { return t.Truncate(time.Hour) },
	PeriodDay: func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	},
	PeriodWeek: func(t time.Time) time.Time {
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		// ISO weeks start on Monday
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	},
	PeriodMonth: func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	},
}

// BucketStart truncates ts to the bucket boundary for the period.
// The boolean is false for an unrecognized period.
func (p TimePeriod) BucketStart(ts time.Time) (time.Time, bool) {
	fn, ok := periodBuckets[p]
	if !ok {
		return time.Time{}, false
	}
	return fn(ts), true
}

var periodSteps = map[TimePeriod]time.Duration{
	PeriodMinute: 15 * time.Second,
	PeriodHour:   time.Minute,
	PeriodDay:    15 * time.Minute,
	PeriodWeek:   time.Hour,
	PeriodMonth:  6 * time.Hour,
}

// QueryStep is the live-source scrape resolution requested for a period.
// Finer than the bucket width so each bucket aggregates several samples.
func (p TimePeriod) QueryStep() time.Duration {
	if step, ok := periodSteps[p]; ok {
		return step
	}
	return time.Minute
}
