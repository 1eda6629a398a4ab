/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/service"
)

// Default parameters for SlidingWindowLimiter.
const (
	DefaultMaxKeys       = 10000
	DefaultSweepInterval = time.Minute * 5
	DefaultIdleHorizon   = time.Hour
)

// Policy describes a single admission limit: at most MaxRequests requests
// per identifier within the trailing Window. ScopeName isolates unrelated
// callers (for example "api" and "device-commands") from each other.
type Policy struct {
	ScopeName   string
	MaxRequests int
	Window      time.Duration
}

// Result is an admission decision. Denials are values, not errors.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests that may still be admitted in the
	// current window, after this decision. Never negative.
	Remaining int

	// ResetTime is the moment the oldest recorded timestamp leaves the window,
	// i.e. the earliest time the window pressure decreases.
	ResetTime time.Time

	// Limit echoes Policy.MaxRequests.
	Limit int

	// Current is the number of timestamps in the window after this decision.
	Current int
}

// ValidatePolicy checks that a policy can actually limit something.
// CheckLimit itself never returns this error; a malformed policy makes it
// fail open (allow) and log the problem once per scope.
func ValidatePolicy(p Policy) error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("max requests should be positive, got %d", p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("window should be positive, got %s", p.Window)
	}
	return nil
}

// windowEntry holds the timestamp log for a single (scope, identifier) pair.
// Timestamps are kept in ascending order.
type windowEntry struct {
	timestamps []time.Time
}

// SlidingWindowLimiter is an exact sliding-window rate limiter.
// All methods are safe for concurrent use.
type SlidingWindowLimiter struct {
	logger        log.FieldLogger
	clock         clock.Clock
	sweepInterval time.Duration
	idleHorizon   time.Duration

	mu             sync.Mutex
	entries        *lru.Cache[string, *windowEntry]
	reportedScopes map[string]struct{}
}

// Opts contains optional parameters for SlidingWindowLimiter.
type Opts struct {
	// MaxKeys bounds the number of tracked (scope, identifier) pairs.
	// The least recently used entry is evicted beyond that. Default is DefaultMaxKeys.
	MaxKeys int

	// SweepInterval is the cadence of the background sweep started by Run.
	// Default is DefaultSweepInterval.
	SweepInterval time.Duration

	// IdleHorizon is how long an entry may stay untouched before the sweep
	// removes it. Default is DefaultIdleHorizon.
	IdleHorizon time.Duration

	// Clock is a time source. The real clock is used when nil.
	Clock clock.Clock
}

// NewSlidingWindowLimiter creates a new limiter with default options.
func NewSlidingWindowLimiter(logger log.FieldLogger) (*SlidingWindowLimiter, error) {
	return NewSlidingWindowLimiterWithOpts(logger, Opts{})
}

// NewSlidingWindowLimiterWithOpts creates a new limiter
// with an ability to specify different optional parameters.
func NewSlidingWindowLimiterWithOpts(logger log.FieldLogger, opts Opts) (*SlidingWindowLimiter, error) {
	if opts.MaxKeys == 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.IdleHorizon == 0 {
		opts.IdleHorizon = DefaultIdleHorizon
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	entries, err := lru.New[string, *windowEntry](opts.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("new LRU store for rate limit keys: %w", err)
	}
	return &SlidingWindowLimiter{
		logger:         logger,
		clock:          opts.Clock,
		sweepInterval:  opts.SweepInterval,
		idleHorizon:    opts.IdleHorizon,
		entries:        entries,
		reportedScopes: make(map[string]struct{}),
	}, nil
}

// CheckLimit decides whether one request from identifier may proceed under
// the given policy and records it if so. Timestamps older than the window
// are purged before counting. The call never blocks on time and never
// returns an error; a malformed policy fails open.
func (l *SlidingWindowLimiter) CheckLimit(identifier string, p Policy) Result {
	now := l.clock.Now()

	if err := ValidatePolicy(p); err != nil {
		l.reportBadPolicy(p, err)
		remaining := p.MaxRequests
		if remaining < 0 {
			remaining = 0
		}
		return Result{Allowed: true, Remaining: remaining, ResetTime: now.Add(p.Window), Limit: p.MaxRequests}
	}

	cutoff := now.Add(-p.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	key := entryKey(p.ScopeName, identifier)
	entry, ok := l.entries.Get(key)
	if !ok {
		entry = &windowEntry{}
		l.entries.Add(key, entry)
	}

	purged := 0
	for purged < len(entry.timestamps) && entry.timestamps[purged].Before(cutoff) {
		purged++
	}
	if purged > 0 {
		entry.timestamps = append(entry.timestamps[:0], entry.timestamps[purged:]...)
	}

	allowed := len(entry.timestamps) < p.MaxRequests
	if allowed {
		entry.timestamps = append(entry.timestamps, now)
	}

	current := len(entry.timestamps)
	remaining := p.MaxRequests - current
	if remaining < 0 {
		remaining = 0
	}
	resetTime := now.Add(p.Window)
	if current > 0 {
		resetTime = entry.timestamps[0].Add(p.Window)
	}

	return Result{Allowed: allowed, Remaining: remaining, ResetTime: resetTime, Limit: p.MaxRequests, Current: current}
}

// Reset forgets all recorded requests for one identifier within a scope.
func (l *SlidingWindowLimiter) Reset(identifier, scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Remove(entryKey(scope, identifier))
}

// ResetAll forgets all recorded requests for every identifier within a scope.
func (l *SlidingWindowLimiter) ResetAll(scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := scope + ":"
	for _, key := range l.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			l.entries.Remove(key)
		}
	}
}

// Len returns the number of tracked (scope, identifier) entries.
func (l *SlidingWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries.Len()
}

// Sweep removes entries whose newest timestamp is older than the idle horizon
// and returns the number of removed entries. Run calls it periodically; it is
// exported so that admin handlers and tests can trigger it directly.
func (l *SlidingWindowLimiter) Sweep() int {
	now := l.clock.Now()
	staleBefore := now.Add(-l.idleHorizon)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, key := range l.entries.Keys() {
		entry, ok := l.entries.Peek(key)
		if !ok {
			continue
		}
		if len(entry.timestamps) == 0 || entry.timestamps[len(entry.timestamps)-1].Before(staleBefore) {
			l.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Run runs the background sweep loop until ctx is canceled.
// It implements service.Worker and may be wrapped into a service.WorkerUnit.
func (l *SlidingWindowLimiter) Run(ctx context.Context) error {
	sweep := service.WorkerFunc(func(ctx context.Context) error {
		if removed := l.Sweep(); removed > 0 {
			l.logger.Debug("rate limit sweep removed idle entries", log.Int("removed", removed))
		}
		return nil
	})
	pw := service.NewPeriodicWorkerWithOpts(sweep, l.sweepInterval, l.logger,
		service.PeriodicWorkerOpts{InitialDelay: l.sweepInterval, Clock: l.clock})
	return pw.Run(ctx)
}

func (l *SlidingWindowLimiter) reportBadPolicy(p Policy, err error) {
	l.mu.Lock()
	_, reported := l.reportedScopes[p.ScopeName]
	if !reported {
		l.reportedScopes[p.ScopeName] = struct{}{}
	}
	l.mu.Unlock()
	if !reported {
		l.logger.Error("rate limit policy is malformed, requests are allowed without limiting",
			log.String("scope", p.ScopeName), log.Error(err))
	}
}

func entryKey(scope, identifier string) string {
	return scope + ":" + identifier
}
