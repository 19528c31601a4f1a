// Package jobmetrics holds the Prometheus collectors shared by background
// jobs and the settlement runner.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the job and settlement collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
	lastBatch *prometheus.GaugeVec
	lastRun   prometheus.Gauge
}

// NewMetrics registers the collectors on registerer. It panics on duplicate
// registration, so callers own one registry per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossbridge_jobs_total",
			Help: "Job executions by task type and result.",
		}, []string{"task", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crossbridge_job_duration_seconds",
			Help:    "Job execution time by task type.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"task"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossbridge_settlement_outcomes_total",
			Help: "Per-counterparty settlement outcomes by bill kind and status.",
		}, []string{"kind", "status"}),
		lastBatch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crossbridge_settlement_last_batch",
			Help: "Counts from the most recent settlement batch.",
		}, []string{"status"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossbridge_settlement_last_batch_timestamp_seconds",
			Help: "Unix time the most recent settlement batch finished.",
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.outcomes, m.lastBatch, m.lastRun)
	return m
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and hands err back unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	t.metrics.runs.WithLabelValues(t.job, result).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ObserveOutcome counts one per-counterparty settlement result.
func (m *Metrics) ObserveOutcome(kind, status string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.outcomes.WithLabelValues(kind, status).Inc()
}

// ObserveBatch publishes the totals of a finished batch.
func (m *Metrics) ObserveBatch(created, skipped, failed int, finished time.Time) {
	if m == nil {
		return
	}
	m.lastBatch.WithLabelValues("CREATED").Set(float64(created))
	m.lastBatch.WithLabelValues("SKIPPED").Set(float64(skipped))
	m.lastBatch.WithLabelValues("FAILED").Set(float64(failed))
	m.lastRun.Set(float64(finished.Unix()))
}
