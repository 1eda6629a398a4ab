/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides an exact sliding-window rate limiter for admission control.
//
// The limiter keeps a log of request timestamps per (scope, identifier) pair and
// allows a request only while fewer than Policy.MaxRequests timestamps fall inside
// the trailing window. Because the full timestamp log is kept (no bucket
// approximation), a burst that fills the window is allowed again exactly when the
// oldest timestamp leaves it.
//
// Key features:
//   - Exact sliding-window accounting with per-request purge of expired timestamps
//   - Independent limits per identifier and per named scope
//   - Bounded memory: entries live in an LRU store and an idle sweep evicts stale keys
//   - Fail-open handling of malformed policies (admission never errors)
//   - Injectable clock for deterministic tests
package ratelimit
