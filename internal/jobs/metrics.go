package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	generated *prometheus.CounterVec
	alerts    *prometheus.CounterVec
	integrity prometheus.Counter
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

// AddGenerated counts entries produced by the scheduler, by kind
// ("recurring" or "reversal").
func (m *Metrics) AddGenerated(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.generated.WithLabelValues(kind).Add(float64(count))
}

// AddBudgetAlerts counts budgets whose utilisation crossed an alert level.
func (m *Metrics) AddBudgetAlerts(level string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alerts.WithLabelValues(level).Add(float64(count))
}

// AddIntegrityViolations counts unbalanced entries found by integrity scans.
func (m *Metrics) AddIntegrityViolations(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.integrity.Add(float64(count))
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
	generated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_scheduled_entries_total",
		Help: "Journal entries generated by the scheduler grouped by kind.",
	}, []string{"kind"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_budget_alerts_total",
		Help: "Budgets observed above an alert threshold during refresh.",
	}, []string{"level"})
	integrity := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_integrity_violations_total",
		Help: "Unbalanced journal entries found by integrity scans.",
	})
	registerer.MustRegister(runs, failures, duration, generated, alerts, integrity)
	return &Metrics{runs: runs, failures: failures, duration: duration, generated: generated, alerts: alerts, integrity: integrity}
}
