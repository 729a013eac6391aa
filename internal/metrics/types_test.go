package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validQuery() MetricQuery {
	return MetricQuery{
		MetricType:  MetricCPUUsage,
		Aggregation: AggAvg,
		Period:      PeriodHour,
		Start:       time.Now().Add(-time.Hour),
		End:         time.Now(),
	}
}

func TestQueryValidateOK(t *testing.T) {
	if err := validQuery().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryValidateRejects(t *testing.T) {
	q := validQuery()
	q.Start, q.End = q.End, q.Start
	if err := q.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("inverted bounds: expected ErrInvalidArgument, got %v", err)
	}

	q = validQuery()
	q.Start = q.End
	if err := q.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("equal bounds: expected ErrInvalidArgument, got %v", err)
	}

	q = validQuery()
	q.MetricType = "NETWORK_IO"
	if err := q.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown metric: expected ErrInvalidArgument, got %v", err)
	}

	q = validQuery()
	q.Aggregation = "P99"
	if err := q.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown aggregation: expected ErrInvalidArgument, got %v", err)
	}

	q = validQuery()
	q.Period = "QUARTER"
	if err := q.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown period: expected ErrInvalidArgument, got %v", err)
	}
}

func TestBucketStartDay(t *testing.T) {
	ts := time.Date(2026, 7, 15, 18, 42, 13, 0, time.Local)
	got, ok := PeriodDay.BucketStart(ts)
	if !ok {
		t.Fatalf("expected known period")
	}
	want := time.Date(2026, 7, 15, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBucketStartWeekOnMonday(t *testing.T) {
	// 2026-07-13 is a Monday; it is its own week start
	monday := time.Date(2026, 7, 13, 9, 0, 0, 0, time.Local)
	got, _ := PeriodWeek.BucketStart(monday)
	want := time.Date(2026, 7, 13, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	// Sunday belongs to the week started the previous Monday
	sunday := time.Date(2026, 7, 19, 23, 0, 0, 0, time.Local)
	got, _ = PeriodWeek.BucketStart(sunday)
	if !got.Equal(want) {
		t.Fatalf("sunday: expected %v, got %v", want, got)
	}
}

func TestBucketStartMonth(t *testing.T) {
	ts := time.Date(2026, 2, 28, 23, 59, 59, 0, time.Local)
	got, _ := PeriodMonth.BucketStart(ts)
	want := time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExpressionScopesApplication(t *testing.T) {
	expr, ok := Expression(MetricErrorRate, "orders")
	if !ok {
		t.Fatalf("expected expression for ERROR_RATE")
	}
	if !strings.Contains(expr, `application="orders"`) {
		t.Fatalf("expression missing application scope: %s", expr)
	}
	if strings.Contains(expr, "%q") {
		t.Fatalf("unexpanded placeholder in %s", expr)
	}
}

func TestExpressionUnknownMetric(t *testing.T) {
	if _, ok := Expression("NETWORK_IO", "orders"); ok {
		t.Fatalf("unknown metric must not yield an expression")
	}
}

func TestSnapshotMetrics(t *testing.T) {
	keys := map[string]bool{}
	for _, mt := range SnapshotMetrics() {
		keys[SnapshotKey(mt)] = true
	}
	for _, want := range []string{"cpuUsage", "heapUsage", "tps", "errorRate"} {
		if !keys[want] {
			t.Fatalf("snapshot metrics missing %s", want)
		}
	}
}
