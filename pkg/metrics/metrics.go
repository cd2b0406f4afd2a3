// Package metrics defines and registers NanoScale's Prometheus metrics:
// privileged gate invocations, deployment pipeline stage durations, and
// idle-monitor activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GateInvocationsTotal counts privileged command gate calls by
	// binary and outcome (ok/rejected/failed).
	GateInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoscale_gate_invocations_total",
			Help: "Total privileged gate invocations by binary and outcome",
		},
		[]string{"binary", "outcome"},
	)

	// PipelineStageDuration observes how long each provisioning stage
	// takes.
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanoscale_pipeline_stage_duration_seconds",
			Help:    "Duration of each project provisioning pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// ProjectsTotal tracks the number of projects known to the
	// orchestrator.
	ProjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nanoscale_projects_total",
			Help: "Total number of projects known to the orchestrator",
		},
	)

	// ServersTotal tracks cluster membership by status.
	ServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nanoscale_servers_total",
			Help: "Total number of servers by status",
		},
		[]string{"status"},
	)

	// IdleStopsTotal counts services stopped by the idle monitor.
	IdleStopsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nanoscale_idle_stops_total",
			Help: "Total number of services stopped by the idle monitor",
		},
	)

	// IdleMonitorTickDuration observes how long one idle-monitor
	// sweep over the watched set takes.
	IdleMonitorTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nanoscale_idle_monitor_tick_duration_seconds",
			Help:    "Duration of one idle monitor sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WorkerDispatchDuration observes signed-call latency from the
	// orchestrator to a worker's internal API.
	WorkerDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanoscale_worker_dispatch_duration_seconds",
			Help:    "Duration of signed orchestrator-to-worker calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		GateInvocationsTotal,
		PipelineStageDuration,
		ProjectsTotal,
		ServersTotal,
		IdleStopsTotal,
		IdleMonitorTickDuration,
		WorkerDispatchDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for an in-flight operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
