/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInCounter asserts that the prometheus.Counter has the given value.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Counter, wantCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(counter))
	gotMetrics, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 1, len(gotMetrics))
	require.Equal(t, wantCount, int(gotMetrics[0].GetMetric()[0].GetCounter().GetValue()))
}

// RequireSamplesCountInHistogram asserts that the prometheus.Histogram contains
// the given number of observed samples.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(hist))
	gotMetrics, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 1, len(gotMetrics))
	require.Equal(t, wantSamplesCount, int(gotMetrics[0].GetMetric()[0].GetHistogram().GetSampleCount()))
}
