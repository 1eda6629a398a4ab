/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package jobqueue provides an in-memory priority job queue with bounded
// concurrency, retries and full lifecycle tracking.
//
// Work is registered as typed handlers and submitted as jobs that carry a
// priority (critical, high, normal or low), an opaque payload and a retry
// budget. A single dispatch loop starts eligible jobs while free concurrency
// slots remain, scanning priority classes in strict order; within a class
// jobs run in submission order. Failed attempts are retried with exponential
// backoff until the budget is exhausted, then the job fails terminally with
// the last error kept for inspection.
//
// Key features:
//   - Strict priority ordering with a global concurrency ceiling
//   - Per-job execution timeout with cooperative handler cancellation
//   - Exponential retry backoff and exactly-once terminal transitions
//   - Lifecycle events for logging and metrics listeners, plus a Prometheus collector
//   - Retention sweep bounding the number of kept completed jobs
//   - Cron-style recurring submissions via CronScheduler
//
// State is process-lifetime only: nothing is persisted and all jobs are lost
// on restart.
package jobqueue
