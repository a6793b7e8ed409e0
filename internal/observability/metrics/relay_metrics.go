package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics exposes prometheus instruments for the outbox relay and
// background jobs. They are registered on the default registerer so the
// /metrics endpoint picks them up.
type RelayMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	eventsOut      *prometheus.CounterVec
	publishRetries prometheus.Counter
	parkedEvents   prometheus.Counter
	batchLag       prometheus.Histogram
}

var (
	relayMetrics     *RelayMetrics
	relayMetricsOnce sync.Once
)

// Relay returns the process-wide relay metrics, registering them on first use.
func Relay() *RelayMetrics {
	relayMetricsOnce.Do(func() {
		relayMetrics = newRelayMetrics(prometheus.DefaultRegisterer)
	})
	return relayMetrics
}

func newRelayMetrics(registerer prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundway_job_runs_total",
			Help: "Background job executions by job name.",
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundway_job_errors_total",
			Help: "Background job failures by job name.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundway_job_duration_seconds",
			Help:    "Background job duration by job name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		eventsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundway_outbox_events_total",
			Help: "Outbox relay outcomes by result (published, failed).",
		}, []string{"result"}),
		publishRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fundway_outbox_publish_retries_total",
			Help: "Publish attempts deferred for a later poll.",
		}),
		parkedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fundway_outbox_parked_events_total",
			Help: "Events parked after exhausting retries or failing validation.",
		}),
		batchLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundway_outbox_oldest_event_age_seconds",
			Help:    "Age of the oldest event in each relay batch.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobErrors,
		m.jobDuration,
		m.eventsOut,
		m.publishRetries,
		m.parkedEvents,
		m.batchLag,
	)
	return m
}

func (m *RelayMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *RelayMetrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *RelayMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *RelayMetrics) IncPublished() {
	if m == nil {
		return
	}
	m.eventsOut.WithLabelValues("published").Inc()
}

func (m *RelayMetrics) IncPublishFailed() {
	if m == nil {
		return
	}
	m.eventsOut.WithLabelValues("failed").Inc()
	m.publishRetries.Inc()
}

func (m *RelayMetrics) IncParked() {
	if m == nil {
		return
	}
	m.parkedEvents.Inc()
}

func (m *RelayMetrics) ObserveOldestEventAge(age time.Duration) {
	if m == nil || age < 0 {
		return
	}
	m.batchLag.Observe(age.Seconds())
}
