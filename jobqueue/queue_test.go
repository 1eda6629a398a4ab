/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
)

const testWaitTimeout = time.Second * 5

func fastTestOpts() Opts {
	return Opts{
		DispatchInterval:  time.Millisecond * 5,
		RetryDelay:        time.Millisecond * 10,
		RetentionInterval: time.Hour,
	}
}

func startTestQueue(t *testing.T, opts Opts) (*Queue, func()) {
	t.Helper()
	queue := NewQueueWithOpts(log.NewDisabledLogger(), opts)
	ctx, ctxCancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- queue.Run(ctx)
	}()
	stop := func() {
		ctxCancel()
		require.NoError(t, <-runErr)
	}
	return queue, stop
}

func TestQueueEndToEnd(t *testing.T) {
	queue, stop := startTestQueue(t, fastTestOpts())
	defer stop()

	queue.RegisterHandler("echo", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return payload.(map[string]interface{})["x"].(int) * 2, nil
	})

	jobID, err := queue.Submit("echo", map[string]interface{}{"x": 21}, SubmitOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, job.Status)
	require.Equal(t, 42, job.Result)
	require.Equal(t, 1, job.Attempts)
	require.Equal(t, PriorityNormal, job.Priority)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	require.Empty(t, job.Error)
}

func TestQueueSubmit(t *testing.T) {
	t.Run("unregistered type fails immediately", func(t *testing.T) {
		queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())

		jobID, err := queue.Submit("unknown", nil, SubmitOptions{})
		require.NoError(t, err)

		job, found := queue.Get(jobID)
		require.True(t, found)
		require.Equal(t, StatusFailed, job.Status)
		require.Equal(t, "No handler registered for job type: unknown", job.Error)
		require.Equal(t, 0, job.Attempts)
		require.NotNil(t, job.CompletedAt)
	})

	t.Run("empty type is rejected", func(t *testing.T) {
		queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())
		_, err := queue.Submit("", nil, SubmitOptions{})
		require.Error(t, err)
	})

	t.Run("unknown priority is rejected", func(t *testing.T) {
		queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())
		queue.RegisterHandler("noop", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
			return nil, nil
		})
		_, err := queue.Submit("noop", nil, SubmitOptions{Priority: "urgent"})
		require.Error(t, err)
	})

	t.Run("metadata is stored as is", func(t *testing.T) {
		queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())
		queue.RegisterHandler("noop", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
			return nil, nil
		})
		jobID, err := queue.Submit("noop", nil, SubmitOptions{
			Metadata: map[string]interface{}{"source": "cron"},
		})
		require.NoError(t, err)
		job, found := queue.Get(jobID)
		require.True(t, found)
		require.Equal(t, map[string]interface{}{"source": "cron"}, job.Metadata)
	})
}

func TestQueueConcurrencyBound(t *testing.T) {
	const maxConcurrent = 2
	const totalJobs = 8

	opts := fastTestOpts()
	opts.MaxConcurrent = maxConcurrent
	queue, stop := startTestQueue(t, opts)
	defer stop()

	var active, maxActive atomic.Int32
	queue.RegisterHandler("busy", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		cur := active.Inc()
		for {
			m := maxActive.Load()
			if cur <= m || maxActive.CAS(m, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond * 20)
		active.Dec()
		return nil, nil
	})

	jobIDs := make([]string, 0, totalJobs)
	for i := 0; i < totalJobs; i++ {
		jobID, err := queue.Submit("busy", i, SubmitOptions{})
		require.NoError(t, err)
		jobIDs = append(jobIDs, jobID)
	}
	for _, jobID := range jobIDs {
		_, err := queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
		require.NoError(t, err)
	}

	require.LessOrEqual(t, maxActive.Load(), int32(maxConcurrent))
	require.Len(t, queue.ListByStatus(StatusCompleted), totalJobs)
}

func TestQueuePriorityOrdering(t *testing.T) {
	opts := fastTestOpts()
	opts.MaxConcurrent = 1
	queue, stop := startTestQueue(t, opts)
	defer stop()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	queue.RegisterHandler("blocker", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		close(blockerStarted)
		<-release
		return nil, nil
	})

	var mu sync.Mutex
	var startOrder []Priority
	queue.RegisterHandler("work", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		mu.Lock()
		startOrder = append(startOrder, job.Priority)
		mu.Unlock()
		return nil, nil
	})

	// Occupy the only slot so that both work jobs are queued before any dispatch.
	_, err := queue.Submit("blocker", nil, SubmitOptions{})
	require.NoError(t, err)
	<-blockerStarted

	lowID, err := queue.Submit("work", nil, SubmitOptions{Priority: PriorityLow})
	require.NoError(t, err)
	criticalID, err := queue.Submit("work", nil, SubmitOptions{Priority: PriorityCritical})
	require.NoError(t, err)
	close(release)

	_, err = queue.AwaitCompletion(context.Background(), lowID, testWaitTimeout)
	require.NoError(t, err)
	_, err = queue.AwaitCompletion(context.Background(), criticalID, testWaitTimeout)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Priority{PriorityCritical, PriorityLow}, startOrder,
		"the critical job must start before the low one even though it was submitted later")
}

func TestQueueRetryExhaustion(t *testing.T) {
	queue, stop := startTestQueue(t, fastTestOpts())
	defer stop()

	errAlways := errors.New("device is not responding")
	var calls atomic.Int32
	queue.RegisterHandler("flaky", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		calls.Inc()
		return nil, errAlways
	})

	jobID, err := queue.Submit("flaky", nil, SubmitOptions{MaxAttempts: 3})
	require.NoError(t, err)

	job, err := queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, 3, job.Attempts)
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, errAlways.Error(), job.Error)
	require.NotNil(t, job.CompletedAt)
	require.Nil(t, job.NextRetryAt)

	completedAt := *job.CompletedAt
	job, found := queue.Get(jobID)
	require.True(t, found)
	require.Equal(t, completedAt, *job.CompletedAt, "completedAt is set exactly once")
}

func TestQueueRetryBackoffGrowth(t *testing.T) {
	opts := fastTestOpts()
	opts.RetryDelay = time.Millisecond * 10
	opts.RetryBackoff = 2
	queue, stop := startTestQueue(t, opts)
	defer stop()

	var mu sync.Mutex
	var delays []time.Duration
	queue.Subscribe(EventListenerFunc(func(e Event) {
		if e.Type == EventJobRetrying {
			mu.Lock()
			delays = append(delays, e.Job.NextRetryAt.Sub(e.Time))
			mu.Unlock()
		}
	}))

	queue.RegisterHandler("flaky", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return nil, errors.New("still failing")
	})

	jobID, err := queue.Submit("flaky", nil, SubmitOptions{MaxAttempts: 3})
	require.NoError(t, err)
	_, err = queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []time.Duration{time.Millisecond * 10, time.Millisecond * 20}, delays,
		"retry delays must double starting from the configured base")
}

func TestQueueRetryScheduleKeepsGrowing(t *testing.T) {
	queue := NewQueueWithOpts(log.NewDisabledLogger(), Opts{RetryDelay: time.Second, RetryBackoff: 2})

	// The 12th delay is ~34m; the schedule must not flatten out around a minute.
	schedule := queue.retryPolicy.NewBackOff()
	var delay time.Duration
	for i := 0; i < 12; i++ {
		delay = schedule.NextBackOff()
	}
	require.Equal(t, time.Second<<11, delay)
}

func TestQueueJobTimeout(t *testing.T) {
	opts := fastTestOpts()
	opts.JobTimeout = time.Millisecond * 20
	queue, stop := startTestQueue(t, opts)
	defer stop()

	ctxHonored := make(chan struct{})
	queue.RegisterHandler("slow", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		<-ctx.Done()
		close(ctxHonored)
		return nil, ctx.Err()
	})

	jobID, err := queue.Submit("slow", nil, SubmitOptions{MaxAttempts: 1})
	require.NoError(t, err)

	job, err := queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.Contains(t, job.Error, "timed out")

	select {
	case <-ctxHonored:
	case <-time.After(testWaitTimeout):
		t.Fatal("the handler context was not canceled on timeout")
	}
}

func TestQueueHandlerPanicIsContained(t *testing.T) {
	queue, stop := startTestQueue(t, fastTestOpts())
	defer stop()

	queue.RegisterHandler("panicky", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		panic("boom")
	})

	jobID, err := queue.Submit("panicky", nil, SubmitOptions{MaxAttempts: 1})
	require.NoError(t, err)

	job, err := queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.Contains(t, job.Error, "panic")
}

func TestQueueRemove(t *testing.T) {
	t.Run("pending job is removed and waiters released", func(t *testing.T) {
		queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())
		queue.RegisterHandler("noop", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
			return nil, nil
		})
		jobID, err := queue.Submit("noop", nil, SubmitOptions{})
		require.NoError(t, err)

		waitErr := make(chan error, 1)
		go func() {
			_, err := queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
			waitErr <- err
		}()

		require.Eventually(t, func() bool { return queue.Remove(jobID) },
			testWaitTimeout, time.Millisecond)
		require.ErrorIs(t, <-waitErr, ErrJobRemoved)

		_, found := queue.Get(jobID)
		require.False(t, found)
		require.False(t, queue.Remove(jobID), "a removed job cannot be removed twice")
	})

	t.Run("processing job is not removed", func(t *testing.T) {
		queue, stop := startTestQueue(t, fastTestOpts())
		defer stop()

		release := make(chan struct{})
		started := make(chan struct{})
		queue.RegisterHandler("blocker", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		})

		jobID, err := queue.Submit("blocker", nil, SubmitOptions{})
		require.NoError(t, err)
		<-started

		require.False(t, queue.Remove(jobID))
		close(release)

		_, err = queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
		require.NoError(t, err)
		require.True(t, queue.Remove(jobID), "a completed job may be removed")
	})
}

func TestQueueAwaitCompletion(t *testing.T) {
	t.Run("unknown job", func(t *testing.T) {
		queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())
		_, err := queue.AwaitCompletion(context.Background(), "missing", time.Millisecond*10)
		require.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("wait timeout", func(t *testing.T) {
		queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())
		queue.RegisterHandler("noop", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
			return nil, nil
		})
		// The queue is not running, so the job stays pending forever.
		jobID, err := queue.Submit("noop", nil, SubmitOptions{})
		require.NoError(t, err)
		_, err = queue.AwaitCompletion(context.Background(), jobID, time.Millisecond*10)
		require.ErrorIs(t, err, ErrWaitTimeout)
	})

	t.Run("canceled context", func(t *testing.T) {
		queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())
		queue.RegisterHandler("noop", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
			return nil, nil
		})
		jobID, err := queue.Submit("noop", nil, SubmitOptions{})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = queue.AwaitCompletion(ctx, jobID, testWaitTimeout)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestQueueClearCompleted(t *testing.T) {
	queue, stop := startTestQueue(t, fastTestOpts())
	defer stop()

	queue.RegisterHandler("ok", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return nil, nil
	})
	queue.RegisterHandler("bad", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return nil, errors.New("nope")
	})

	for i := 0; i < 3; i++ {
		jobID, err := queue.Submit("ok", i, SubmitOptions{})
		require.NoError(t, err)
		_, err = queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
		require.NoError(t, err)
	}
	failedID, err := queue.Submit("bad", nil, SubmitOptions{MaxAttempts: 1})
	require.NoError(t, err)
	_, err = queue.AwaitCompletion(context.Background(), failedID, testWaitTimeout)
	require.NoError(t, err)

	require.Equal(t, 3, queue.ClearCompleted())
	require.Equal(t, 0, queue.ClearCompleted(), "a repeated cleanup with no new completions removes nothing")

	_, found := queue.Get(failedID)
	require.True(t, found, "failed jobs are never auto-purged")
}

func TestQueueRetention(t *testing.T) {
	opts := fastTestOpts()
	opts.MaxCompletedJobs = 2
	opts.RetentionInterval = time.Millisecond * 15
	queue, stop := startTestQueue(t, opts)
	defer stop()

	queue.RegisterHandler("ok", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return nil, nil
	})

	for i := 0; i < 5; i++ {
		jobID, err := queue.Submit("ok", i, SubmitOptions{})
		require.NoError(t, err)
		_, err = queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(queue.ListByStatus(StatusCompleted)) == 2
	}, testWaitTimeout, time.Millisecond*5, "the retention sweep must trim completed jobs down to the cap")
}

func TestQueueStats(t *testing.T) {
	queue, stop := startTestQueue(t, fastTestOpts())
	defer stop()

	queue.RegisterHandler("ok", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		time.Sleep(time.Millisecond * 5)
		return nil, nil
	})
	queue.RegisterHandler("bad", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return nil, errors.New("nope")
	})

	st := queue.Stats()
	require.Equal(t, float64(0), st.SuccessRate, "success rate is 0 when no terminal jobs exist")

	for i := 0; i < 3; i++ {
		jobID, err := queue.Submit("ok", i, SubmitOptions{})
		require.NoError(t, err)
		_, err = queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
		require.NoError(t, err)
	}
	failedID, err := queue.Submit("bad", nil, SubmitOptions{MaxAttempts: 1})
	require.NoError(t, err)
	_, err = queue.AwaitCompletion(context.Background(), failedID, testWaitTimeout)
	require.NoError(t, err)

	st = queue.Stats()
	require.Equal(t, 4, st.Total)
	require.Equal(t, 3, st.CountByStatus[StatusCompleted])
	require.Equal(t, 1, st.CountByStatus[StatusFailed])
	require.Equal(t, 0.75, st.SuccessRate)
	require.Greater(t, st.AverageProcessingTime, time.Duration(0))
}

func TestQueueListSnapshots(t *testing.T) {
	queue := NewQueueWithOpts(log.NewDisabledLogger(), fastTestOpts())
	queue.RegisterHandler("sync", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return nil, nil
	})
	queue.RegisterHandler("poll", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return nil, nil
	})

	var syncIDs []string
	for i := 0; i < 2; i++ {
		jobID, err := queue.Submit("sync", i, SubmitOptions{})
		require.NoError(t, err)
		syncIDs = append(syncIDs, jobID)
	}
	_, err := queue.Submit("poll", nil, SubmitOptions{})
	require.NoError(t, err)

	pending := queue.ListByStatus(StatusPending)
	require.Len(t, pending, 3)
	require.Equal(t, syncIDs[0], pending[0].ID, "listings preserve submission order")

	syncJobs := queue.ListByType("sync")
	require.Len(t, syncJobs, 2)

	// Mutating a snapshot must not leak into the queue's state.
	syncJobs[0].Status = StatusFailed
	job, found := queue.Get(syncJobs[0].ID)
	require.True(t, found)
	require.Equal(t, StatusPending, job.Status)
}

func TestQueueEvents(t *testing.T) {
	queue, stop := startTestQueue(t, fastTestOpts())
	defer stop()

	var mu sync.Mutex
	var events []EventType
	queue.Subscribe(EventListenerFunc(func(e Event) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	}))

	queue.RegisterHandler("ok", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return nil, nil
	})

	jobID, err := queue.Submit("ok", nil, SubmitOptions{})
	require.NoError(t, err)
	_, err = queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Sprint(events) == fmt.Sprint([]EventType{EventJobAdded, EventJobProcessing, EventJobCompleted})
	}, testWaitTimeout, time.Millisecond)
}

func TestQueueRegisterHandlerReplaces(t *testing.T) {
	queue, stop := startTestQueue(t, fastTestOpts())
	defer stop()

	queue.RegisterHandler("job", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return "first", nil
	})
	queue.RegisterHandler("job", func(ctx context.Context, payload interface{}, job Job) (interface{}, error) {
		return "second", nil
	})

	jobID, err := queue.Submit("job", nil, SubmitOptions{})
	require.NoError(t, err)
	job, err := queue.AwaitCompletion(context.Background(), jobID, testWaitTimeout)
	require.NoError(t, err)
	require.Equal(t, "second", job.Result)
}
