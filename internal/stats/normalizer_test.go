package stats

import (
	"errors"
	"testing"
	"time"

	"pulseboard/internal/metrics"
)

func TestNormalizeEmptyInput(t *testing.T) {
	points, err := Normalize(nil, metrics.PeriodHour, metrics.AggAvg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected empty output, got %d points", len(points))
	}
}

func TestNormalizeUnknownAggregation(t *testing.T) {
	_, err := Normalize([]metrics.RawSample{{TimestampSeconds: 0, Value: 1}}, metrics.PeriodHour, "MEDIAN")
	if !errors.Is(err, metrics.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNormalizeUnknownPeriod(t *testing.T) {
	_, err := Normalize([]metrics.RawSample{{TimestampSeconds: 0, Value: 1}}, "FORTNIGHT", metrics.AggAvg)
	if !errors.Is(err, metrics.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNormalizeSameHourBucket(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.Local)
	samples := []metrics.RawSample{
		{TimestampSeconds: base.Add(5 * time.Minute).Unix(), Value: 40},
		{TimestampSeconds: base.Add(50 * time.Minute).Unix(), Value: 60},
	}
	points, err := Normalize(samples, metrics.PeriodHour, metrics.AggAvg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected one bucket, got %d", len(points))
	}
	p := points[0]
	if p.SampleCount != 2 {
		t.Fatalf("expected sampleCount 2, got %d", p.SampleCount)
	}
	if p.Value != 50 {
		t.Fatalf("expected avg 50, got %v", p.Value)
	}
	if p.MinValue != 40 || p.MaxValue != 60 {
		t.Fatalf("expected min 40 max 60, got %v/%v", p.MinValue, p.MaxValue)
	}
	if p.Timestamp != base.Format(metrics.PointTimeLayout) {
		t.Fatalf("expected bucket start %q, got %q", base.Format(metrics.PointTimeLayout), p.Timestamp)
	}
}

func TestNormalizeSingleSampleBucket(t *testing.T) {
	points, err := Normalize([]metrics.RawSample{{TimestampSeconds: time.Now().Unix(), Value: 7.5}}, metrics.PeriodMinute, metrics.AggMax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected one bucket, got %d", len(points))
	}
	p := points[0]
	if p.MinValue != 7.5 || p.MaxValue != 7.5 || p.Value != 7.5 {
		t.Fatalf("single sample should give min=max=value, got %+v", p)
	}
}

func TestNormalizeSampleCountConserved(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local)
	samples := make([]metrics.RawSample, 0, 37)
	for i := 0; i < 37; i++ {
		samples = append(samples, metrics.RawSample{
			TimestampSeconds: base.Add(time.Duration(i*41) * time.Minute).Unix(),
			Value:            float64(i),
		})
	}
	points, err := Normalize(samples, metrics.PeriodHour, metrics.AggCount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := 0
	for _, p := range points {
		total += p.SampleCount
		if float64(p.SampleCount) != p.Value {
			t.Fatalf("COUNT aggregation should equal sampleCount, got %v vs %d", p.Value, p.SampleCount)
		}
	}
	if total != len(samples) {
		t.Fatalf("sample counts must sum to input size: got %d want %d", total, len(samples))
	}
}

func TestNormalizeOrderedOutput(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.Local)
	// deliberately unordered input
	samples := []metrics.RawSample{
		{TimestampSeconds: base.Add(3 * time.Hour).Unix(), Value: 3},
		{TimestampSeconds: base.Unix(), Value: 1},
		{TimestampSeconds: base.Add(time.Hour).Unix(), Value: 2},
	}
	points, err := Normalize(samples, metrics.PeriodHour, metrics.AggSum)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i-1].Timestamp >= points[i].Timestamp {
			t.Fatalf("points not ascending: %q before %q", points[i-1].Timestamp, points[i].Timestamp)
		}
	}
}

func TestNormalizeWeekBucketStartsMonday(t *testing.T) {
	// 2026-03-12 is a Thursday; its ISO week starts Monday 2026-03-09
	thursday := time.Date(2026, 3, 12, 10, 30, 0, 0, time.Local)
	points, err := Normalize([]metrics.RawSample{{TimestampSeconds: thursday.Unix(), Value: 1}}, metrics.PeriodWeek, metrics.AggAvg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.Local).Format(metrics.PointTimeLayout)
	if points[0].Timestamp != want {
		t.Fatalf("expected week bucket %q, got %q", want, points[0].Timestamp)
	}
}
