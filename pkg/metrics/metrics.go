// Package metrics exposes the agent's stats counters and report queue
// depth as Prometheus gauges, the same promhttp-served registry idiom the
// teacher's pkg/metrics uses for cluster-wide gauges, narrowed to the
// per-task-type counters monitor_stats_t specifies (§4.9).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostpulse/agent/pkg/types"
)

var (
	// TasksTotal mirrors monitor_stats_t: one gauge per task type plus the
	// grand total, labeled by type the way the teacher labels NodesTotal by
	// role and status.
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostpulse_tasks_total",
			Help: "Number of active tasks by type, mirroring the agent's in-process stats counters.",
		},
		[]string{"type"},
	)

	// ReportQueueDepth mirrors the report queue's current length, the one
	// piece of backpressure state §7 says an implementation MAY cap.
	ReportQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostpulse_report_queue_depth",
			Help: "Number of reports currently queued awaiting drain to the control socket.",
		},
	)

	// ReportQueueDropped counts reports discarded under the oldest-first
	// bounding policy, when one is configured.
	ReportQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hostpulse_report_queue_dropped_total",
			Help: "Reports dropped because the bounded report queue was full.",
		},
	)

	// ConnectionState is 1 while the control connection is established, 0
	// while the agent is between handshakes (dialing or reconnecting).
	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostpulse_connection_up",
			Help: "1 if the control connection to the server is established, 0 otherwise.",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal, ReportQueueDepth, ReportQueueDropped, ConnectionState)
}

// RecordStats copies a stats snapshot into the TasksTotal gauge vec.
func RecordStats(s types.Stats) {
	TasksTotal.WithLabelValues("total").Set(float64(s.NumTasks))
	TasksTotal.WithLabelValues("process").Set(float64(s.NumProcessTasks))
	TasksTotal.WithLabelValues("directory").Set(float64(s.NumDirTasks))
	TasksTotal.WithLabelValues("disk").Set(float64(s.NumDiskTasks))
	TasksTotal.WithLabelValues("swap").Set(float64(s.NumSwapTasks))
	TasksTotal.WithLabelValues("load").Set(float64(s.NumLoadTasks))
	TasksTotal.WithLabelValues("total_resource").Set(float64(s.NumTotalTasks))
}

// RecordQueueDepth publishes the current report queue length.
func RecordQueueDepth(n int) {
	ReportQueueDepth.Set(float64(n))
}

// RecordQueueDropped adds delta newly-dropped reports to the cumulative
// oldest-first drop counter. Callers track the queue's running total
// themselves and pass only the increase since the last call.
func RecordQueueDropped(delta int) {
	if delta > 0 {
		ReportQueueDropped.Add(float64(delta))
	}
}

// RecordConnected publishes whether the control connection is currently up.
func RecordConnected(up bool) {
	if up {
		ConnectionState.Set(1)
	} else {
		ConnectionState.Set(0)
	}
}

// Handler returns the promhttp handler for the default registry, served by
// cmd/agent behind --metrics-addr exactly as the teacher's cmd/warren wires
// pprof/metrics endpoints behind a flag.
func Handler() http.Handler {
	return promhttp.Handler()
}
