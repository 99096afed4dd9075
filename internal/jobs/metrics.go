package jobmetrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Job run outcomes recorded in the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusSkipped marks runs that failed permanently and will not be retried.
	StatusSkipped = "skipped"
	// StatusContended marks runs that found the work held by another worker.
	// They are retried but do not count as failures.
	StatusContended = "contended"
)

// ErrContended is wrapped by handlers whose run lost a lock to another worker.
var ErrContended = errors.New("job contended")

// Metrics holds the Prometheus collectors of the background workers.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	recomputed *prometheus.CounterVec
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	return register(prometheus.DefaultRegisterer)
})

// NewMetrics registers the job collectors. A nil registerer shares one set of
// collectors on the default Prometheus registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return defaultMetrics()
	}
	return register(registerer)
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged. Errors wrapping
// asynq.SkipRetry count as skipped and errors wrapping ErrContended as
// contended; neither is a failure.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := outcome(err)
	if status == StatusFailure {
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	case errors.Is(err, ErrContended):
		return StatusContended
	default:
		return StatusFailure
	}
}

// AddRecomputedLines counts order lines repriced by a recompute of a company's order.
func (m *Metrics) AddRecomputedLines(companyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recomputed.WithLabelValues(strconv.FormatInt(max(companyID, 0), 10)).Add(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Background job runs by job type and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_failures_total",
			Help: "Background job runs that failed and will be retried, excluding lock contention.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Background job run duration.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		recomputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_sales_recomputed_lines_total",
			Help: "Sales order lines repriced by background recomputes.",
		}, []string{"company"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.recomputed)
	return m
}
