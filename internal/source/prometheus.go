package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pulseboard/internal/metrics"
)

// PrometheusSource reads from the Prometheus HTTP API.
type PrometheusSource struct {
	BaseURL string
	Client  *http.Client
}

func NewPrometheusSource(baseURL string, timeout time.Duration) *PrometheusSource {
	return &PrometheusSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type promResponse struct {
	Status string   `json:"status"`
	Error  string   `json:"error"`
	Data   promData `json:"data"`
}

type promData struct {
	ResultType string       `json:"resultType"`
	Result     []promSeries `json:"result"`
}

type promSeries struct {
	Metric map[string]string   `json:"metric"`
	Value  []json.RawMessage   `json:"value"`
	Values [][]json.RawMessage `json:"values"`
}

func (p *PrometheusSource) Query(ctx context.Context, q metrics.MetricQuery, start, end time.Time) ([]metrics.RawSample, error) {
	expr, ok := metrics.Expression(q.MetricType, q.Application)
	if !ok {
		return nil, fmt.Errorf("%w: no live expression for metric %q", metrics.ErrInvalidArgument, q.MetricType)
	}
	step := q.Period.QueryStep()

	params := url.Values{}
	params.Set("query", expr)
	params.Set("start", strconv.FormatInt(start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))
	params.Set("step", strconv.FormatInt(int64(step.Seconds()), 10))

	var resp promResponse
	if err := p.get(ctx, "/api/v1/query_range", params, &resp); err != nil {
		return nil, err
	}

	samples := []metrics.RawSample{}
	for _, series := range resp.Data.Result {
		for _, pair := range series.Values {
			sample, err := decodeSamplePair(pair)
			if err != nil {
				continue
			}
			samples = append(samples, sample)
		}
	}
	return samples, nil
}

func (p *PrometheusSource) Snapshot(ctx context.Context, application string) (map[string]float64, error) {
	snapshot := map[string]float64{}
	var lastErr error
	for _, mt := range metrics.SnapshotMetrics() {
		expr, _ := metrics.Expression(mt, application)
		params := url.Values{}
		params.Set("query", expr)
		var resp promResponse
		if err := p.get(ctx, "/api/v1/query", params, &resp); err != nil {
			lastErr = err
			continue
		}
		for _, series := range resp.Data.Result {
			sample, err := decodeSamplePair(series.Value)
			if err != nil {
				continue
			}
			snapshot[metrics.SnapshotKey(mt)] = sample.Value
			break
		}
	}
	if len(snapshot) == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: %v", metrics.ErrUpstreamUnavailable, lastErr)
	}
	return snapshot, nil
}

func (p *PrometheusSource) get(ctx context.Context, path string, params url.Values, out *promResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", metrics.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: prometheus returned status %d", metrics.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding prometheus response: %v", metrics.ErrUpstreamUnavailable, err)
	}
	if out.Status != "success" {
		return fmt.Errorf("%w: prometheus query failed: %s", metrics.ErrUpstreamUnavailable, out.Error)
	}
	return nil
}

// decodeSamplePair parses a Prometheus [unixSeconds, "value"] pair. The
// timestamp may carry sub-second precision; it is truncated to seconds.
func decodeSamplePair(pair []json.RawMessage) (metrics.RawSample, error) {
	if len(pair) != 2 {
		return metrics.RawSample{}, fmt.Errorf("malformed sample pair")
	}
	var ts float64
	if err := json.Unmarshal(pair[0], &ts); err != nil {
		return metrics.RawSample{}, err
	}
	var raw string
	if err := json.Unmarshal(pair[1], &raw); err != nil {
		return metrics.RawSample{}, err
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return metrics.RawSample{}, err
	}
	return metrics.RawSample{TimestampSeconds: int64(ts), Value: value}, nil
}
