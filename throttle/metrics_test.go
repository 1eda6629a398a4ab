/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestServiceMetricsAvgResponseTime(t *testing.T) {
	m := &serviceMetrics{}
	require.Equal(t, time.Duration(0), m.avg())

	m.observeSuccess(time.Millisecond * 100)
	require.Equal(t, time.Millisecond*100, m.avg())

	m.observeSuccess(time.Millisecond * 200)
	require.Equal(t, time.Millisecond*150, m.avg())

	m.observeSuccess(time.Millisecond * 600)
	require.Equal(t, time.Millisecond*300, m.avg())
}

func TestPrometheusMetricsCollector(t *testing.T) {
	collector := NewPrometheusMetricsCollectorWithOpts(PrometheusMetricsCollectorOpts{Namespace: "sportsbar"})
	collector.MustRegister()
	defer collector.Unregister()

	collector.RequestStarted("espn-api")
	require.Equal(t, float64(1), testutil.ToFloat64(collector.InFlight.WithLabelValues("espn-api")))

	collector.RequestFinished("espn-api", true, time.Millisecond*100)
	require.Equal(t, float64(0), testutil.ToFloat64(collector.InFlight.WithLabelValues("espn-api")))
	require.Equal(t, float64(1), testutil.ToFloat64(collector.Requests.WithLabelValues("espn-api", "success")))

	collector.RequestStarted("espn-api")
	collector.RequestFinished("espn-api", false, time.Millisecond*50)
	require.Equal(t, float64(1), testutil.ToFloat64(collector.Requests.WithLabelValues("espn-api", "failure")))

	collector.RetryScheduled("espn-api")
	require.Equal(t, float64(1), testutil.ToFloat64(collector.Retries.WithLabelValues("espn-api")))

	collector.QueueLengthChanged("espn-api", 3)
	require.Equal(t, float64(3), testutil.ToFloat64(collector.QueueLengths.WithLabelValues("espn-api")))

	require.Equal(t, 2, testutil.CollectAndCount(collector.ResponseTimes))
}

func TestThrottlerWithPrometheusCollector(t *testing.T) {
	collector := NewPrometheusMetricsCollector()
	collector.MustRegister()
	defer collector.Unregister()

	throttler, stop := startTestThrottler(t, Opts{MetricsCollector: collector})
	defer stop()

	_, err := throttler.Execute(context.Background(), "espn-api", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(collector.Requests.WithLabelValues("espn-api", "success")))
	require.Equal(t, float64(0), testutil.ToFloat64(collector.InFlight.WithLabelValues("espn-api")))
	require.Equal(t, float64(0), testutil.ToFloat64(collector.QueueLengths.WithLabelValues("espn-api")))
}
