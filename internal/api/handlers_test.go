package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"pulseboard/internal/metrics"
	"pulseboard/internal/stats"
)

type stubLive struct {
	samples []metrics.RawSample
	err     error
}

func (s *stubLive) Query(ctx context.Context, q metrics.MetricQuery, start, end time.Time) ([]metrics.RawSample, error) {
	return s.samples, s.err
}

func (s *stubLive) Snapshot(ctx context.Context, application string) (map[string]float64, error) {
	return nil, nil
}

type stubArchive struct {
	points []metrics.DataPoint
	err    error
}

func (s *stubArchive) Query(ctx context.Context, q metrics.MetricQuery, start, end time.Time) ([]metrics.DataPoint, error) {
	return s.points, s.err
}

func newTestRouter(live *stubLive, archive *stubArchive, now time.Time) chi.Router {
	blender := stats.NewBlender(live, archive, 30*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	blender.Now = func() time.Time { return now }
	h := &Handler{Blender: blender, Timeout: 5 * time.Second}
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func timeseriesURL(start, end time.Time) string {
	params := url.Values{}
	params.Set("metricType", "CPU_USAGE")
	params.Set("aggregation", "AVG")
	params.Set("period", "HOUR")
	params.Set("application", "orders")
	params.Set("start", start.Format(time.RFC3339))
	params.Set("end", end.Format(time.RFC3339))
	return "/api/statistics/timeseries?" + params.Encode()
}

func TestTimeseriesRecentWindow(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	live := &stubLive{samples: []metrics.RawSample{
		{TimestampSeconds: now.Add(-2*time.Hour + time.Minute).Unix(), Value: 40},
		{TimestampSeconds: now.Add(-2*time.Hour + 10*time.Minute).Unix(), Value: 60},
	}}
	router := newTestRouter(live, &stubArchive{}, now)

	req := httptest.NewRequest(http.MethodGet, timeseriesURL(now.Add(-3*time.Hour), now), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result metrics.StatisticsResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.DataSource != metrics.SourcePrometheus {
		t.Fatalf("expected PROMETHEUS source, got %s", result.DataSource)
	}
	if len(result.Points) != 1 {
		t.Fatalf("expected 1 hourly bucket, got %d", len(result.Points))
	}
	if result.Points[0].Value != 50 {
		t.Fatalf("expected averaged value 50, got %v", result.Points[0].Value)
	}
}

func TestTimeseriesStraddlingWindow(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * 24 * time.Hour)
	live := &stubLive{samples: []metrics.RawSample{
		{TimestampSeconds: now.Add(-time.Hour).Unix(), Value: 70},
	}}
	archive := &stubArchive{points: []metrics.DataPoint{
		{
			Timestamp:   cutoff.Add(-time.Hour).Format(metrics.PointTimeLayout),
			Value:       30,
			MinValue:    30,
			MaxValue:    30,
			SampleCount: 12,
		},
	}}
	router := newTestRouter(live, archive, now)

	req := httptest.NewRequest(http.MethodGet, timeseriesURL(cutoff.Add(-2*time.Hour), now), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result metrics.StatisticsResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.DataSource != metrics.SourceMixed {
		t.Fatalf("expected MIXED source, got %s", result.DataSource)
	}
	if len(result.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(result.Points))
	}
	if result.Points[0].Value != 30 || result.Points[1].Value != 70 {
		t.Fatalf("points out of order: %v", result.Points)
	}
}

func TestTimeseriesRejectsBadTimestamps(t *testing.T) {
	router := newTestRouter(&stubLive{}, &stubArchive{}, time.Now())
	req := httptest.NewRequest(http.MethodGet, "/api/statistics/timeseries?start=yesterday&end=today", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTimeseriesRejectsUnknownMetric(t *testing.T) {
	now := time.Now().UTC()
	router := newTestRouter(&stubLive{}, &stubArchive{}, now)
	req := httptest.NewRequest(http.MethodGet, timeseriesURL(now.Add(-time.Hour), now), nil)
	q := req.URL.Query()
	q.Set("metricType", "DISK_TEMPERATURE")
	req.URL.RawQuery = q.Encode()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTimeseriesUpstreamFailure(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	live := &stubLive{err: fmt.Errorf("%w: prometheus down", metrics.ErrUpstreamUnavailable)}
	router := newTestRouter(live, &stubArchive{}, now)

	req := httptest.NewRequest(http.MethodGet, timeseriesURL(now.Add(-time.Hour), now), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
}
