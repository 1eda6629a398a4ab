/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log/logtest"
)

func mustNewTestLimiter(t *testing.T, opts Opts) (*SlidingWindowLimiter, *clock.Mock) {
	t.Helper()
	mockClock := clock.NewMock()
	opts.Clock = mockClock
	limiter, err := NewSlidingWindowLimiterWithOpts(log.NewDisabledLogger(), opts)
	require.NoError(t, err)
	return limiter, mockClock
}

func TestSlidingWindowLimiter_CheckLimit(t *testing.T) {
	apiPolicy := Policy{ScopeName: "api", MaxRequests: 5, Window: time.Second}

	t.Run("allows up to the limit and counts down remaining", func(t *testing.T) {
		limiter, _ := mustNewTestLimiter(t, Opts{})

		for i := 1; i <= 5; i++ {
			res := limiter.CheckLimit("10.0.0.5", apiPolicy)
			require.True(t, res.Allowed, "request #%d should be allowed", i)
			require.Equal(t, 5, res.Limit)
			require.Equal(t, i, res.Current)
			require.Equal(t, 5-i, res.Remaining)
		}

		res := limiter.CheckLimit("10.0.0.5", apiPolicy)
		require.False(t, res.Allowed)
		require.Equal(t, 5, res.Current)
		require.Equal(t, 0, res.Remaining)
	})

	t.Run("window slides exactly", func(t *testing.T) {
		limiter, mockClock := mustNewTestLimiter(t, Opts{})
		start := mockClock.Now()

		for i := 0; i < 5; i++ {
			require.True(t, limiter.CheckLimit("10.0.0.5", apiPolicy).Allowed)
		}

		mockClock.Add(time.Millisecond * 999)
		res := limiter.CheckLimit("10.0.0.5", apiPolicy)
		require.False(t, res.Allowed, "999ms after the burst the window is still full")
		require.Equal(t, start.Add(time.Second), res.ResetTime)

		mockClock.Add(time.Millisecond * 2)
		res = limiter.CheckLimit("10.0.0.5", apiPolicy)
		require.True(t, res.Allowed, "1001ms after the burst the oldest timestamp has left the window")
		require.Equal(t, 1, res.Current)
	})

	t.Run("reset time is derived from the oldest timestamp", func(t *testing.T) {
		limiter, mockClock := mustNewTestLimiter(t, Opts{})
		start := mockClock.Now()

		require.True(t, limiter.CheckLimit("10.0.0.5", apiPolicy).Allowed)
		mockClock.Add(time.Millisecond * 300)
		res := limiter.CheckLimit("10.0.0.5", apiPolicy)
		require.True(t, res.Allowed)
		require.Equal(t, start.Add(time.Second), res.ResetTime)

		// Empty window: reset time is one full window from now.
		res = limiter.CheckLimit("10.0.0.77", apiPolicy)
		require.True(t, res.Allowed)
		require.Equal(t, mockClock.Now().Add(time.Second), res.ResetTime)
	})

	t.Run("identifiers are limited independently", func(t *testing.T) {
		limiter, _ := mustNewTestLimiter(t, Opts{})

		for i := 0; i < 5; i++ {
			require.True(t, limiter.CheckLimit("10.0.0.5", apiPolicy).Allowed)
		}
		require.False(t, limiter.CheckLimit("10.0.0.5", apiPolicy).Allowed)
		require.True(t, limiter.CheckLimit("10.0.0.6", apiPolicy).Allowed)
	})

	t.Run("scopes are limited independently", func(t *testing.T) {
		limiter, _ := mustNewTestLimiter(t, Opts{})
		devicePolicy := Policy{ScopeName: "device-commands", MaxRequests: 5, Window: time.Second}

		for i := 0; i < 5; i++ {
			require.True(t, limiter.CheckLimit("10.0.0.5", apiPolicy).Allowed)
		}
		require.False(t, limiter.CheckLimit("10.0.0.5", apiPolicy).Allowed)
		require.True(t, limiter.CheckLimit("10.0.0.5", devicePolicy).Allowed)
	})

	t.Run("malformed policy fails open and is logged once per scope", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		mockClock := clock.NewMock()
		limiter, err := NewSlidingWindowLimiterWithOpts(logRecorder, Opts{Clock: mockClock})
		require.NoError(t, err)

		badPolicy := Policy{ScopeName: "api", MaxRequests: 0, Window: time.Second}
		for i := 0; i < 3; i++ {
			res := limiter.CheckLimit("10.0.0.5", badPolicy)
			require.True(t, res.Allowed)
			require.Equal(t, 0, res.Current)
		}
		require.Error(t, ValidatePolicy(badPolicy))

		entries := logRecorder.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
			return entry.Level == log.LevelError
		})
		require.Len(t, entries, 1)
		scopeField, found := entries[0].FindField("scope")
		require.True(t, found)
		require.Equal(t, "api", string(scopeField.Bytes))

		// Another malformed scope is reported separately.
		limiter.CheckLimit("10.0.0.5", Policy{ScopeName: "device-commands", MaxRequests: 10, Window: 0})
		entries = logRecorder.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
			return entry.Level == log.LevelError
		})
		require.Len(t, entries, 2)
	})
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	policy := Policy{ScopeName: "api", MaxRequests: 2, Window: time.Minute}

	t.Run("reset clears a single identifier", func(t *testing.T) {
		limiter, _ := mustNewTestLimiter(t, Opts{})

		require.True(t, limiter.CheckLimit("10.0.0.5", policy).Allowed)
		require.True(t, limiter.CheckLimit("10.0.0.5", policy).Allowed)
		require.False(t, limiter.CheckLimit("10.0.0.5", policy).Allowed)
		require.True(t, limiter.CheckLimit("10.0.0.6", policy).Allowed)
		require.True(t, limiter.CheckLimit("10.0.0.6", policy).Allowed)

		limiter.Reset("10.0.0.5", "api")

		require.True(t, limiter.CheckLimit("10.0.0.5", policy).Allowed)
		require.False(t, limiter.CheckLimit("10.0.0.6", policy).Allowed, "other identifiers keep their windows")
	})

	t.Run("resetAll clears a whole scope and nothing else", func(t *testing.T) {
		limiter, _ := mustNewTestLimiter(t, Opts{})
		otherPolicy := Policy{ScopeName: "device-commands", MaxRequests: 1, Window: time.Minute}

		require.True(t, limiter.CheckLimit("10.0.0.5", policy).Allowed)
		require.True(t, limiter.CheckLimit("10.0.0.6", policy).Allowed)
		require.True(t, limiter.CheckLimit("10.0.0.5", otherPolicy).Allowed)
		require.False(t, limiter.CheckLimit("10.0.0.5", otherPolicy).Allowed)

		limiter.ResetAll("api")

		res := limiter.CheckLimit("10.0.0.5", policy)
		require.True(t, res.Allowed)
		require.Equal(t, 1, res.Current, "window started over after reset")
		require.False(t, limiter.CheckLimit("10.0.0.5", otherPolicy).Allowed, "other scope is untouched")
	})
}

func TestSlidingWindowLimiter_Sweep(t *testing.T) {
	limiter, mockClock := mustNewTestLimiter(t, Opts{IdleHorizon: time.Hour})
	policy := Policy{ScopeName: "api", MaxRequests: 100, Window: time.Second}

	limiter.CheckLimit("10.0.0.5", policy)
	limiter.CheckLimit("10.0.0.6", policy)
	require.Equal(t, 2, limiter.Len())

	mockClock.Add(time.Minute * 30)
	limiter.CheckLimit("10.0.0.5", policy) // keep this one fresh
	mockClock.Add(time.Minute * 35)

	require.Equal(t, 1, limiter.Sweep())
	require.Equal(t, 1, limiter.Len())

	mockClock.Add(time.Hour * 2)
	require.Equal(t, 1, limiter.Sweep())
	require.Equal(t, 0, limiter.Len())
	require.Equal(t, 0, limiter.Sweep())
}

func TestSlidingWindowLimiter_BoundedKeys(t *testing.T) {
	limiter, _ := mustNewTestLimiter(t, Opts{MaxKeys: 2})
	policy := Policy{ScopeName: "api", MaxRequests: 1, Window: time.Hour}

	limiter.CheckLimit("10.0.0.1", policy)
	limiter.CheckLimit("10.0.0.2", policy)
	limiter.CheckLimit("10.0.0.3", policy)
	require.Equal(t, 2, limiter.Len(), "the least recently used entry is evicted")
}

func TestSlidingWindowLimiter_ConcurrentBurst(t *testing.T) {
	limiter, err := NewSlidingWindowLimiter(log.NewDisabledLogger())
	require.NoError(t, err)
	policy := Policy{ScopeName: "api", MaxRequests: 100, Window: time.Minute}

	var allowedCount atomic.Int64
	var group errgroup.Group
	for i := 0; i < 50; i++ {
		group.Go(func() error {
			for j := 0; j < 4; j++ {
				if limiter.CheckLimit("10.0.0.5", policy).Allowed {
					allowedCount.Inc()
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	require.EqualValues(t, 100, allowedCount.Load(), "exactly MaxRequests admissions under concurrency")
}

func TestSlidingWindowLimiter_Run(t *testing.T) {
	limiter, mockClock := mustNewTestLimiter(t, Opts{SweepInterval: time.Minute, IdleHorizon: time.Minute * 30})
	policy := Policy{ScopeName: "api", MaxRequests: 1, Window: time.Second}
	limiter.CheckLimit("10.0.0.5", policy)
	require.Equal(t, 1, limiter.Len())

	ctx, ctxCancel := context.WithCancel(context.Background())
	runErr := make(chan error)
	go func() {
		runErr <- limiter.Run(ctx)
	}()

	time.Sleep(time.Millisecond * 50)
	require.Eventually(t, func() bool {
		mockClock.Add(time.Minute * 31)
		return limiter.Len() == 0
	}, time.Second*5, time.Millisecond*10)

	ctxCancel()
	require.NoError(t, <-runErr)
}
