package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records outcomes of maintenance jobs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	overdue  prometheus.Gauge
}

// NewJobMetrics registers the maintenance job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions by outcome.",
	}, []string{"job", "outcome"})
	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transport_batches_overdue",
		Help: "Batches in transit longer than the configured threshold at the last sweep.",
	})
	reg.MustRegister(duration, runs, overdue)
	return &JobMetrics{duration: duration, runs: runs, overdue: overdue}
}

// ObserveDuration records the duration for the named job.
func (m *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a successful run of the named job.
func (m *JobMetrics) IncSuccess(job string) {
	m.inc(job, "success")
}

// IncFailure counts a failed run of the named job.
func (m *JobMetrics) IncFailure(job string) {
	m.inc(job, "failure")
}

func (m *JobMetrics) inc(job, outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

// SetOverdueBatches publishes the size of the latest overdue sweep.
func (m *JobMetrics) SetOverdueBatches(n int) {
	if m == nil || m.overdue == nil {
		return
	}
	m.overdue.Set(float64(n))
}
