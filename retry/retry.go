/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides backoff policies that describe how delays between
// retry attempts grow. Policies only build schedules; the retrying components
// own their attempt state and decide when to draw the next delay.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines a backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffOpts tunes the exponential schedule.
type ExponentialBackoffOpts struct {
	// Multiplier is the growth factor for successive delays. Zero keeps the backoff default (1.5).
	Multiplier float64

	// NoJitter disables delay randomization, making the schedule deterministic.
	NoJitter bool

	// MaxInterval caps a single delay. Zero keeps the backoff default.
	MaxInterval time.Duration

	// MaxElapsedTime is the total time budget for all retries. Zero means no budget.
	MaxElapsedTime time.Duration
}

// ExponentialBackoffPolicy means repeat up to max times with exponentially growing delays.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxAttempts     int
	opts            ExponentialBackoffOpts
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with the given
// initial interval and max retry attempt count.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval: initialInterval, maxAttempts: maxRetryAttempts}
}

// NewExponentialBackoffPolicyWithOpts is a more configurable version of NewExponentialBackoffPolicy.
func NewExponentialBackoffPolicyWithOpts(
	initialInterval time.Duration, maxRetryAttempts int, opts ExponentialBackoffOpts,
) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval: initialInterval, maxAttempts: maxRetryAttempts, opts: opts}
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	if p.opts.Multiplier > 0 {
		eb.Multiplier = p.opts.Multiplier
	}
	if p.opts.NoJitter {
		eb.RandomizationFactor = 0
	}
	if p.opts.MaxInterval > 0 {
		eb.MaxInterval = p.opts.MaxInterval
	}
	eb.MaxElapsedTime = p.opts.MaxElapsedTime
	var bf backoff.BackOff = eb
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(eb, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}

// ConstantBackoffPolicy means repeat up to max times with constant interval delays.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy with the given interval
// and max retry attempt count.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = backoff.NewConstantBackOff(p.interval)
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}
