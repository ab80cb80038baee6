package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	discrepancies *prometheus.GaugeVec
	alerts        *prometheus.CounterVec
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

// SetDiscrepancies records the size of the latest reconciliation scan per
// kind. Branch 0 is the network-wide scan and is labelled "all".
func (m *Metrics) SetDiscrepancies(branchID int64, kind, severity string, count int) {
	if m == nil {
		return
	}
	m.discrepancies.WithLabelValues(BranchLabel(branchID), kind, severity).Set(float64(count))
}

// BranchLabel renders the branch label value of a scan.
func BranchLabel(branchID int64) string {
	if branchID == 0 {
		return "all"
	}
	return strconv.FormatInt(branchID, 10)
}

// AddAlerts counts notifications written by a job.
func (m *Metrics) AddAlerts(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alerts.WithLabelValues(kind).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bakery_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	discrepancies := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bakery_inventory_discrepancies",
		Help: "Discrepancies found by the latest reconciliation scan.",
	}, []string{"branch", "kind", "severity"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_job_alerts_total",
		Help: "Notifications created by background jobs.",
	}, []string{"kind"})
	registerer.MustRegister(runs, failures, duration, discrepancies, alerts)
	return &Metrics{runs: runs, failures: failures, duration: duration, discrepancies: discrepancies, alerts: alerts}
}
