/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// ServiceMetrics is a point-in-time snapshot of one service's counters.
// All counters are per physical call attempt: a ticket retried twice
// contributes three requests.
type ServiceMetrics struct {
	TotalRequests  int64
	TotalSuccesses int64
	TotalFailures  int64
	TotalRetries   int64

	// AvgResponseTime is the incrementally updated mean response time over
	// successful calls only.
	AvgResponseTime time.Duration

	// QueueLength is the number of tickets waiting to be started.
	QueueLength int

	// InFlight is the number of calls currently executing.
	InFlight int
}

// serviceMetrics holds the live counters of one service.
type serviceMetrics struct {
	totalRequests  atomic.Int64
	totalSuccesses atomic.Int64
	totalFailures  atomic.Int64
	totalRetries   atomic.Int64

	avgMu           sync.Mutex
	avgResponseTime time.Duration
}

func (m *serviceMetrics) observeSuccess(elapsed time.Duration) {
	n := m.totalSuccesses.Inc()
	m.avgMu.Lock()
	m.avgResponseTime += (elapsed - m.avgResponseTime) / time.Duration(n)
	m.avgMu.Unlock()
}

func (m *serviceMetrics) avg() time.Duration {
	m.avgMu.Lock()
	defer m.avgMu.Unlock()
	return m.avgResponseTime
}

func (s *serviceState) snapshotMetrics() ServiceMetrics {
	return ServiceMetrics{
		TotalRequests:   s.metrics.totalRequests.Load(),
		TotalSuccesses:  s.metrics.totalSuccesses.Load(),
		TotalFailures:   s.metrics.totalFailures.Load(),
		TotalRetries:    s.metrics.totalRetries.Load(),
		AvgResponseTime: s.metrics.avg(),
		QueueLength:     s.queueLen(),
		InFlight:        s.slots.InUse(),
	}
}

// MetricsCollector is an interface for collecting throttling metrics externally.
type MetricsCollector interface {
	// RequestStarted is called when a physical call to the service begins.
	RequestStarted(serviceName string)

	// RequestFinished is called when a physical call returns.
	RequestFinished(serviceName string, success bool, elapsed time.Duration)

	// RetryScheduled is called when a failed call is scheduled for a retry.
	RetryScheduled(serviceName string)

	// QueueLengthChanged reports the service's queue length after each change.
	QueueLengthChanged(serviceName string, length int)
}

type disabledMetrics struct{}

func (disabledMetrics) RequestStarted(string)                       {}
func (disabledMetrics) RequestFinished(string, bool, time.Duration) {}
func (disabledMetrics) RetryScheduled(string)                       {}
func (disabledMetrics) QueueLengthChanged(string, int)              {}

const (
	metricsLabelService = "service"
	metricsLabelStatus  = "status"
)

const (
	metricsStatusSuccess = "success"
	metricsStatusFailure = "failure"
)

// DefaultResponseTimeBuckets is default buckets into which observations of outbound call durations are counted.
var DefaultResponseTimeBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// PrometheusMetricsCollectorOpts represents an options for PrometheusMetricsCollector.
type PrometheusMetricsCollectorOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ResponseTimeBuckets is a list of buckets into which observations of outbound call durations are counted.
	ResponseTimeBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetricsCollector represents collector of metrics for outbound throttled calls.
type PrometheusMetricsCollector struct {
	Requests      *prometheus.CounterVec
	Retries       *prometheus.CounterVec
	ResponseTimes *prometheus.HistogramVec
	InFlight      *prometheus.GaugeVec
	QueueLengths  *prometheus.GaugeVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates a new metrics collector.
func NewPrometheusMetricsCollector() *PrometheusMetricsCollector {
	return NewPrometheusMetricsCollectorWithOpts(PrometheusMetricsCollectorOpts{})
}

// NewPrometheusMetricsCollectorWithOpts is a more configurable version of creating PrometheusMetricsCollector.
func NewPrometheusMetricsCollectorWithOpts(opts PrometheusMetricsCollectorOpts) *PrometheusMetricsCollector {
	responseTimeBuckets := opts.ResponseTimeBuckets
	if responseTimeBuckets == nil {
		responseTimeBuckets = DefaultResponseTimeBuckets
	}
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_requests_total",
			Help:        "A counter of started outbound calls per service and final status.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelService, metricsLabelStatus},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_retries_total",
			Help:        "A counter of scheduled retries per service.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelService},
	)
	responseTimes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_response_time_seconds",
			Help:        "A histogram of outbound call durations.",
			Buckets:     responseTimeBuckets,
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelService, metricsLabelStatus},
	)
	inFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_requests_in_flight",
			Help:        "Current number of outbound calls being executed.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelService},
	)
	queueLengths := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_length",
			Help:        "Current number of queued tickets per service.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{metricsLabelService},
	)
	return &PrometheusMetricsCollector{
		Requests:      requests,
		Retries:       retries,
		ResponseTimes: responseTimes,
		InFlight:      inFlight,
		QueueLengths:  queueLengths,
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(
		c.Requests,
		c.Retries,
		c.ResponseTimes,
		c.InFlight,
		c.QueueLengths,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(c.QueueLengths)
	prometheus.Unregister(c.InFlight)
	prometheus.Unregister(c.ResponseTimes)
	prometheus.Unregister(c.Retries)
	prometheus.Unregister(c.Requests)
}

// RequestStarted implements MetricsCollector.
func (c *PrometheusMetricsCollector) RequestStarted(serviceName string) {
	c.InFlight.WithLabelValues(serviceName).Inc()
}

// RequestFinished implements MetricsCollector.
func (c *PrometheusMetricsCollector) RequestFinished(serviceName string, success bool, elapsed time.Duration) {
	status := metricsStatusFailure
	if success {
		status = metricsStatusSuccess
	}
	c.InFlight.WithLabelValues(serviceName).Dec()
	c.Requests.WithLabelValues(serviceName, status).Inc()
	c.ResponseTimes.WithLabelValues(serviceName, status).Observe(elapsed.Seconds())
}

// RetryScheduled implements MetricsCollector.
func (c *PrometheusMetricsCollector) RetryScheduled(serviceName string) {
	c.Retries.WithLabelValues(serviceName).Inc()
}

// QueueLengthChanged implements MetricsCollector.
func (c *PrometheusMetricsCollector) QueueLengthChanged(serviceName string, length int) {
	c.QueueLengths.WithLabelValues(serviceName).Set(float64(length))
}
