package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	executions  *prometheus.CounterVec
	tickFirings *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// RecordExecution counts one compound execution outcome.
func (m *Metrics) RecordExecution(automatic, success bool) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(triggerLabel(automatic), outcomeLabel(success)).Inc()
}

// AddTickOutcome accumulates the per-definition results of one sweep.
func (m *Metrics) AddTickOutcome(succeeded, failed, skipped int) {
	if m == nil {
		return
	}
	for outcome, n := range map[string]int{"success": succeeded, "failure": failed, "skipped": skipped} {
		if n > 0 {
			m.tickFirings.WithLabelValues(outcome).Add(float64(n))
		}
	}
}

func triggerLabel(automatic bool) string {
	if automatic {
		return "automatic"
	}
	return "manual"
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	executions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_compound_executions_total",
		Help: "Compound journal executions partitioned by trigger and outcome.",
	}, []string{"trigger", "outcome"})
	tickFirings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_compound_tick_firings_total",
		Help: "Definitions handled by scheduler sweeps partitioned by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(runs, failures, duration, executions, tickFirings)
	return &Metrics{runs: runs, failures: failures, duration: duration, executions: executions, tickFirings: tickFirings}
}
