/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service provides building blocks for long-running daemons.
// A Unit is a component with a start/stop lifecycle. Units can be composed
// and run together until a fatal error or a shutdown signal.
package service

// Unit is a service component that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation.
	//
	// An implementation may perform its initialization and return immediately,
	// or block the calling goroutine for the unit's whole lifetime.
	// Stop may be called regardless of whether the unit started successfully,
	// failed, or is still running.
	//
	// If Start succeeds, it must not write anything to the provided error channel,
	// and the channel must not be used after Start has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit. When gracefully is true, the unit should attempt
	// a clean shutdown. Stop may be called even if Start failed or never ran.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that register their own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
