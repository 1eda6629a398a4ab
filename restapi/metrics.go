/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsSubsystem = "restapi"

	metricsLabelResponseErrorDomain = "domain"
	metricsLabelResponseErrorCode   = "code"
)

var metricsResponseErrors *prometheus.CounterVec

// MustInitAndRegisterMetrics initializes and registers the package's global metrics.
// Panics on registration error.
func MustInitAndRegisterMetrics(namespace string) {
	metricsResponseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "response_errors",
			Help:      "The total number of errors sent in API responses.",
		},
		[]string{metricsLabelResponseErrorDomain, metricsLabelResponseErrorCode},
	)
	prometheus.MustRegister(metricsResponseErrors)
}

// UnregisterMetrics unregisters the package's global metrics.
func UnregisterMetrics() {
	if metricsResponseErrors != nil {
		prometheus.Unregister(metricsResponseErrors)
	}
}
