/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttle paces outbound calls to external services.
//
// Every service gets an independent FIFO queue, a minimum spacing between
// call starts (1/RequestsPerSecond) and a ceiling on concurrent calls.
// Callers block only on their own ticket; a saturated service never delays
// calls to other services.
//
// Failed calls are retried with exponential backoff and re-queued at the
// FRONT of their service's queue, so a retried call does not starve behind
// a backlog of fresh work for the same service. After the configured retry
// budget is exhausted, the caller receives the last error.
//
// Key features:
//   - Per-service pacing profiles taken from configuration, never hard-coded
//   - Retries with capped exponential backoff and front re-queueing
//   - Per-service running metrics (requests, successes, failures, retries,
//     mean response time over successes) and an optional Prometheus collector
//   - Graceful shutdown: queued tickets are rejected with ErrThrottlerStopped,
//     in-flight calls run to completion
package throttle
