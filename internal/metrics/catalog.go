package metrics

import "fmt"

// Info describes how one metric type maps onto the live backend: the
// PromQL expression used for range queries, the key it appears under in a
// current-value snapshot, and its display unit.
type Info struct {
	Expr        string
	SnapshotKey string
	Unit        string
}

var metricInfo = map[MetricType]Info{
	MetricCPUUsage: {
		Expr:        `avg(rate(process_cpu_seconds_total{application=%q}[1m])) * 100`,
		SnapshotKey: "cpuUsage",
		Unit:        "%",
	},
	MetricHeapUsage: {
		Expr:        `sum(jvm_memory_used_bytes{application=%q,area="heap"}) / sum(jvm_memory_max_bytes{application=%q,area="heap"}) * 100`,
		SnapshotKey: "heapUsage",
		Unit:        "%",
	},
	MetricTPS: {
		Expr:        `sum(rate(http_server_requests_seconds_count{application=%q}[1m]))`,
		SnapshotKey: "tps",
		Unit:        "req/s",
	},
	MetricErrorRate: {
		Expr:        `sum(rate(http_server_requests_seconds_count{application=%q,status=~"5.."}[1m])) / sum(rate(http_server_requests_seconds_count{application=%q}[1m])) * 100`,
		SnapshotKey: "errorRate",
		Unit:        "%",
	},
	MetricDBConnections: {
		Expr:        `sum(hikaricp_connections_active{application=%q})`,
		SnapshotKey: "",
		Unit:        "connections",
	},
	MetricDBSize: {
		Expr:        `pg_database_size_bytes{application=%q}`,
		SnapshotKey: "",
		Unit:        "bytes",
	},
}

// Expression renders the PromQL expression for a metric type scoped to an
// application label. The boolean is false for an unknown metric type.
func Expression(mt MetricType, application string) (string, bool) {
	info, ok := metricInfo[mt]
	if !ok {
		return "", false
	}
	n := 0
	for i := 0; i+1 < len(info.Expr); i++ {
		if info.Expr[i] == '%' && info.Expr[i+1] == 'q' {
			n++
		}
	}
	args := make([]any, n)
	for i := range args {
		args[i] = application
	}
	return fmt.Sprintf(info.Expr, args...), true
}

// SnapshotKey returns the field name a metric type carries in a live
// snapshot, or "" when the metric has no instantaneous form.
func SnapshotKey(mt MetricType) string {
	return metricInfo[mt].SnapshotKey
}

// Unit returns the display unit for a metric type.
func Unit(mt MetricType) string {
	return metricInfo[mt].Unit
}

// SnapshotMetrics lists the metric types that appear in a live snapshot.
func SnapshotMetrics() []MetricType {
	out := []MetricType{}
	for _, mt := range []MetricType{MetricCPUUsage, MetricHeapUsage, MetricTPS, MetricErrorRate} {
		if metricInfo[mt].SnapshotKey != "" {
			out = append(out, mt)
		}
	}
	return out
}
