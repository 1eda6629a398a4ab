/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHTTPRequestMetricsHandler_ServeHTTP(t *testing.T) {
	getRoutePattern := func(r *http.Request) string { return r.URL.Path }

	t.Run("request duration is observed with status code", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		next := &nextCountingHandler{}
		handler := HTTPRequestMetrics(collector, getRoutePattern)(next)

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.Equal(t, 1, next.called)
		require.Equal(t, 1, testutil.CollectAndCount(collector.Durations))
		labels := prometheus.Labels{
			httpRequestMetricsLabelMethod:       http.MethodGet,
			httpRequestMetricsLabelRoutePattern: "/api/jobs",
			httpRequestMetricsLabelStatusCode:   "200",
		}
		hist, err := collector.Durations.GetMetricWith(labels)
		require.NoError(t, err)
		require.NotNil(t, hist)
	})

	t.Run("panic is observed as 500 and propagated", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
		handler := HTTPRequestMetrics(collector, getRoutePattern)(next)

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		require.Panics(t, func() { handler.ServeHTTP(httptest.NewRecorder(), req) })

		require.Equal(t, 1, testutil.CollectAndCount(collector.Durations))
	})

	t.Run("excluded endpoints are not observed", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		next := &nextCountingHandler{}
		handler := HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{
			ExcludedEndpoints: []string{"/healthz"},
		})(next)

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, 1, next.called)
		require.Equal(t, 0, testutil.CollectAndCount(collector.Durations))
	})

	t.Run("in flight gauge returns to zero", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		var gaugeDuringRequest float64
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gaugeDuringRequest = testutil.ToFloat64(collector.InFlight.With(prometheus.Labels{
				httpRequestMetricsLabelMethod:       http.MethodGet,
				httpRequestMetricsLabelRoutePattern: "/api/jobs",
			}))
			rw.WriteHeader(http.StatusOK)
		})
		handler := HTTPRequestMetrics(collector, getRoutePattern)(next)

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

		require.Equal(t, float64(1), gaugeDuringRequest)
		require.Equal(t, float64(0), testutil.ToFloat64(collector.InFlight.With(prometheus.Labels{
			httpRequestMetricsLabelMethod:       http.MethodGet,
			httpRequestMetricsLabelRoutePattern: "/api/jobs",
		})))
	})
}
