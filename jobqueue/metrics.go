/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jobqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelJobType  = "job_type"
	metricsLabelPriority = "priority"
	metricsLabelResult   = "result"
)

const (
	metricsResultCompleted = "completed"
	metricsResultFailed    = "failed"
)

// DefaultProcessingTimeBuckets is default buckets into which observations of job processing durations are counted.
var DefaultProcessingTimeBuckets = []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600}

// PrometheusMetricsCollectorOpts represents an options for PrometheusMetricsCollector.
type PrometheusMetricsCollectorOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ProcessingTimeBuckets is a list of buckets into which observations of job processing durations are counted.
	ProcessingTimeBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetricsCollector represents collector of metrics for job queue activity.
// It consumes queue events, subscribe it with Queue.Subscribe.
type PrometheusMetricsCollector struct {
	SubmittedJobs   *prometheus.CounterVec
	ProcessedJobs   *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	RemovedJobs     *prometheus.CounterVec
	CleanedUpJobs   prometheus.Counter
	InFlightJobs    prometheus.Gauge
	ProcessingTimes *prometheus.HistogramVec
}

var _ EventListener = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates a new metrics collector.
func NewPrometheusMetricsCollector() *PrometheusMetricsCollector {
	return NewPrometheusMetricsCollectorWithOpts(PrometheusMetricsCollectorOpts{})
}

// NewPrometheusMetricsCollectorWithOpts is a more configurable version of creating PrometheusMetricsCollector.
func NewPrometheusMetricsCollectorWithOpts(opts PrometheusMetricsCollectorOpts) *PrometheusMetricsCollector {
	processingTimeBuckets := opts.ProcessingTimeBuckets
	if processingTimeBuckets == nil {
		processingTimeBuckets = DefaultProcessingTimeBuckets
	}
	submittedJobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "jobqueue_submitted_jobs_total",
			Help:        "A counter of submitted jobs per type and priority.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelJobType, metricsLabelPriority},
	)
	processedJobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "jobqueue_processed_jobs_total",
			Help:        "A counter of terminally finished jobs per type and result.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelJobType, metricsLabelResult},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "jobqueue_retries_total",
			Help:        "A counter of scheduled job retries per type.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelJobType},
	)
	removedJobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "jobqueue_removed_jobs_total",
			Help:        "A counter of explicitly removed jobs per type.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelJobType},
	)
	cleanedUpJobs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "jobqueue_cleaned_up_jobs_total",
			Help:        "A counter of completed jobs removed by cleanups and retention sweeps.",
			ConstLabels: opts.ConstLabels,
		},
	)
	inFlightJobs := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "jobqueue_jobs_in_flight",
			Help:        "Current number of jobs being processed.",
			ConstLabels: opts.ConstLabels,
		},
	)
	processingTimes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "jobqueue_processing_time_seconds",
			Help:        "A histogram of job attempt durations up to the terminal transition.",
			Buckets:     processingTimeBuckets,
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelJobType, metricsLabelResult},
	)
	return &PrometheusMetricsCollector{
		SubmittedJobs:   submittedJobs,
		ProcessedJobs:   processedJobs,
		Retries:         retries,
		RemovedJobs:     removedJobs,
		CleanedUpJobs:   cleanedUpJobs,
		InFlightJobs:    inFlightJobs,
		ProcessingTimes: processingTimes,
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(
		c.SubmittedJobs,
		c.ProcessedJobs,
		c.Retries,
		c.RemovedJobs,
		c.CleanedUpJobs,
		c.InFlightJobs,
		c.ProcessingTimes,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(c.ProcessingTimes)
	prometheus.Unregister(c.InFlightJobs)
	prometheus.Unregister(c.CleanedUpJobs)
	prometheus.Unregister(c.RemovedJobs)
	prometheus.Unregister(c.Retries)
	prometheus.Unregister(c.ProcessedJobs)
	prometheus.Unregister(c.SubmittedJobs)
}

// HandleQueueEvent implements EventListener.
func (c *PrometheusMetricsCollector) HandleQueueEvent(e Event) {
	switch e.Type {
	case EventJobAdded:
		c.SubmittedJobs.WithLabelValues(e.Job.Type, string(e.Job.Priority)).Inc()
	case EventJobProcessing:
		c.InFlightJobs.Inc()
	case EventJobCompleted:
		c.InFlightJobs.Dec()
		c.ProcessedJobs.WithLabelValues(e.Job.Type, metricsResultCompleted).Inc()
		c.observeProcessingTime(e.Job, metricsResultCompleted)
	case EventJobRetrying:
		c.InFlightJobs.Dec()
		c.Retries.WithLabelValues(e.Job.Type).Inc()
	case EventJobFailed:
		// A job failed at submission (no registered handler) was never in flight.
		if e.Job.StartedAt != nil {
			c.InFlightJobs.Dec()
		}
		c.ProcessedJobs.WithLabelValues(e.Job.Type, metricsResultFailed).Inc()
		c.observeProcessingTime(e.Job, metricsResultFailed)
	case EventJobRemoved:
		c.RemovedJobs.WithLabelValues(e.Job.Type).Inc()
	case EventCleanup:
		c.CleanedUpJobs.Add(float64(e.Removed))
	}
}

func (c *PrometheusMetricsCollector) observeProcessingTime(job *Job, result string) {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return
	}
	c.ProcessingTimes.WithLabelValues(job.Type, result).Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
}
