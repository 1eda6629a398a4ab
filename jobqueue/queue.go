/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/internal/slots"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/retry"
)

// Default parameters for Queue.
const (
	DefaultMaxConcurrent     = 3
	DefaultDispatchInterval  = time.Millisecond * 100
	DefaultJobTimeout        = time.Second * 30
	DefaultMaxAttempts       = 3
	DefaultRetryDelay        = time.Second
	DefaultRetryBackoff      = 2.0
	DefaultMaxCompletedJobs  = 1000
	DefaultRetentionInterval = time.Minute
)

// maxRetryDelay bounds a single retry delay. Without an explicit bound the
// backoff library would silently cap delays at its own 60s default.
const maxRetryDelay = 24 * time.Hour

// Errors returned by AwaitCompletion.
var (
	ErrWaitTimeout = errors.New("waiting for job completion timed out")
	ErrJobRemoved  = errors.New("job was removed")
	ErrJobNotFound = errors.New("job is not found")
)

// Handler executes one job attempt. The passed context is canceled when the
// per-job timeout elapses; handlers should honor it, a returned error or a
// panic is converted into the retry/failure state machine and never escapes
// the queue.
type Handler func(ctx context.Context, payload interface{}, job Job) (interface{}, error)

// SubmitOptions contains optional parameters for Submit.
type SubmitOptions struct {
	// Priority is the job's scheduling tier. Empty means PriorityNormal.
	Priority Priority

	// MaxAttempts caps execution attempts. Zero means the queue's default.
	MaxAttempts int

	// Metadata holds free-form caller annotations stored on the job as is.
	Metadata map[string]interface{}
}

// Stats is a point-in-time summary of the queue's contents.
type Stats struct {
	// Total is the number of tracked jobs.
	Total int

	// CountByStatus holds the number of jobs per status.
	CountByStatus map[Status]int

	// AverageProcessingTime is the mean duration of completed jobs' last attempts.
	AverageProcessingTime time.Duration

	// SuccessRate is completed/(completed+failed), 0 when no terminal jobs exist.
	SuccessRate float64
}

type jobRecord struct {
	job     Job
	done    chan struct{}
	removed bool
	backoff backoff.BackOff
}

// Queue schedules and executes registered work asynchronously with bounded
// concurrency, retries with exponential backoff and full lifecycle tracking.
// All methods are safe for concurrent use. Jobs may be submitted before Run;
// they are dispatched once the queue is running.
type Queue struct {
	logger log.FieldLogger
	clock  clock.Clock

	maxConcurrent      int
	dispatchInterval   time.Duration
	jobTimeout         time.Duration
	defaultMaxAttempts int
	retryPolicy        retry.Policy
	maxCompletedJobs   int
	retentionInterval  time.Duration

	slots *slots.Pool
	wake  chan struct{}

	mu        sync.Mutex
	handlers  map[string]Handler
	jobs      map[string]*jobRecord
	order     []*jobRecord
	listeners []EventListener

	wg sync.WaitGroup
}

// Opts contains optional parameters for Queue.
type Opts struct {
	// MaxConcurrent bounds the number of jobs processed simultaneously.
	// Default is DefaultMaxConcurrent.
	MaxConcurrent int

	// DispatchInterval is the cadence of the periodic dispatch. Dispatch is also
	// edge-triggered after every submission and completion, the ticker only
	// catches retrying jobs whose delay elapsed. Default is DefaultDispatchInterval.
	DispatchInterval time.Duration

	// JobTimeout bounds a single execution attempt. Default is DefaultJobTimeout.
	JobTimeout time.Duration

	// DefaultMaxAttempts is applied to jobs submitted without an explicit cap.
	// Default is DefaultMaxAttempts.
	DefaultMaxAttempts int

	// RetryDelay is the delay before the first retry. Default is DefaultRetryDelay.
	RetryDelay time.Duration

	// RetryBackoff is the growth factor of consecutive retry delays.
	// Default is DefaultRetryBackoff.
	RetryBackoff float64

	// MaxCompletedJobs bounds how many completed jobs the retention sweep keeps.
	// Default is DefaultMaxCompletedJobs.
	MaxCompletedJobs int

	// RetentionInterval is the cadence of the retention sweep.
	// Default is DefaultRetentionInterval.
	RetentionInterval time.Duration

	// Clock is a time source. The real clock is used when nil.
	Clock clock.Clock
}

// NewQueue creates a new Queue with default options.
func NewQueue(logger log.FieldLogger) *Queue {
	return NewQueueWithOpts(logger, Opts{})
}

// NewQueueWithOpts creates a new Queue with an ability to specify different optional parameters.
func NewQueueWithOpts(logger log.FieldLogger, opts Opts) *Queue {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.DispatchInterval <= 0 {
		opts.DispatchInterval = DefaultDispatchInterval
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.DefaultMaxAttempts <= 0 {
		opts.DefaultMaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.MaxCompletedJobs <= 0 {
		opts.MaxCompletedJobs = DefaultMaxCompletedJobs
	}
	if opts.RetentionInterval <= 0 {
		opts.RetentionInterval = DefaultRetentionInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	pool, _ := slots.NewPool(opts.MaxConcurrent) // capacity is normalized, never invalid
	return &Queue{
		logger:             logger,
		clock:              opts.Clock,
		maxConcurrent:      opts.MaxConcurrent,
		dispatchInterval:   opts.DispatchInterval,
		jobTimeout:         opts.JobTimeout,
		defaultMaxAttempts: opts.DefaultMaxAttempts,
		retryPolicy: retry.NewExponentialBackoffPolicyWithOpts(opts.RetryDelay, 0, retry.ExponentialBackoffOpts{
			Multiplier:  opts.RetryBackoff,
			NoJitter:    true,
			MaxInterval: maxRetryDelay,
		}),
		maxCompletedJobs:  opts.MaxCompletedJobs,
		retentionInterval: opts.RetentionInterval,
		slots:             pool,
		wake:              make(chan struct{}, 1),
		handlers:          make(map[string]Handler),
		jobs:              make(map[string]*jobRecord),
	}
}

// RegisterHandler binds a handler to a job type.
// Re-registration is legal, the last registration wins.
func (q *Queue) RegisterHandler(jobType string, h Handler) {
	q.mu.Lock()
	q.handlers[jobType] = h
	q.mu.Unlock()
	q.logger.Info("job handler registered", log.String("job_type", jobType))
}

// Subscribe registers a listener for queue lifecycle events. Events are
// delivered synchronously from the submission and dispatch goroutines, so
// listeners must be fast. Events are emitted outside the queue mutex, and a
// ticker-driven dispatch may deliver a job's processing event before its
// added event; per-job ordering is not guaranteed across goroutines.
func (q *Queue) Subscribe(l EventListener) {
	q.mu.Lock()
	q.listeners = append(q.listeners, l)
	q.mu.Unlock()
}

// Submit enqueues a new pending job and returns its ID immediately, never
// blocking on execution. Submitting an unregistered type creates a job that
// is already terminally failed; the ID is still returned so the failure can
// be inspected via Get.
func (q *Queue) Submit(jobType string, payload interface{}, opts SubmitOptions) (string, error) {
	if jobType == "" {
		return "", fmt.Errorf("job type should not be empty")
	}
	if opts.Priority == "" {
		opts.Priority = PriorityNormal
	}
	if !opts.Priority.IsValid() {
		return "", fmt.Errorf("unknown job priority %q", opts.Priority)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.defaultMaxAttempts
	}

	now := q.clock.Now()
	rec := &jobRecord{
		job: Job{
			ID:          xid.New().String(),
			Type:        jobType,
			Priority:    opts.Priority,
			Payload:     payload,
			Status:      StatusPending,
			MaxAttempts: maxAttempts,
			CreatedAt:   now,
			Metadata:    opts.Metadata,
		},
		done: make(chan struct{}),
	}

	q.mu.Lock()
	_, registered := q.handlers[jobType]
	addedSnapshot := copyJob(rec.job)
	if !registered {
		rec.job.Status = StatusFailed
		rec.job.Error = "No handler registered for job type: " + jobType
		completedAt := now
		rec.job.CompletedAt = &completedAt
		close(rec.done)
	}
	q.jobs[rec.job.ID] = rec
	q.order = append(q.order, rec)
	failedSnapshot := copyJob(rec.job)
	q.mu.Unlock()

	q.emit(Event{Type: EventJobAdded, Job: &addedSnapshot, Time: now})
	if !registered {
		q.emit(Event{Type: EventJobFailed, Job: &failedSnapshot, Time: now})
		return rec.job.ID, nil
	}
	q.wakeUp()
	return rec.job.ID, nil
}

// Get returns a snapshot of the job with the given ID.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return copyJob(rec.job), true
}

// ListByStatus returns snapshots of all jobs in the given status, in submission order.
func (q *Queue) ListByStatus(status Status) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var result []Job
	for _, rec := range q.order {
		if rec.job.Status == status {
			result = append(result, copyJob(rec.job))
		}
	}
	return result
}

// ListByType returns snapshots of all jobs of the given type, in submission order.
func (q *Queue) ListByType(jobType string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var result []Job
	for _, rec := range q.order {
		if rec.job.Type == jobType {
			result = append(result, copyJob(rec.job))
		}
	}
	return result
}

// Remove deletes a job unless it is currently processing.
// Waiters of a removed non-terminal job are released with ErrJobRemoved.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	rec, ok := q.jobs[id]
	if !ok || rec.job.Status == StatusProcessing {
		q.mu.Unlock()
		return false
	}
	delete(q.jobs, id)
	q.removeFromOrderLocked(rec)
	if !rec.job.Status.IsTerminal() {
		rec.removed = true
		close(rec.done)
	}
	snapshot := copyJob(rec.job)
	q.mu.Unlock()

	q.emit(Event{Type: EventJobRemoved, Job: &snapshot, Time: q.clock.Now()})
	return true
}

// AwaitCompletion blocks until the job reaches a terminal status and returns
// its final snapshot. It fails with ErrWaitTimeout if the given timeout
// elapses first, with ErrJobRemoved if the job is removed while waiting and
// with ErrJobNotFound for an unknown ID. This is a convenience for callers,
// the scheduling loop never waits on it.
func (q *Queue) AwaitCompletion(ctx context.Context, id string, timeout time.Duration) (Job, error) {
	q.mu.Lock()
	rec, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("job %q: %w", id, ErrJobNotFound)
	}

	timer := q.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case <-rec.done:
		q.mu.Lock()
		defer q.mu.Unlock()
		if rec.removed {
			return Job{}, fmt.Errorf("job %q: %w", id, ErrJobRemoved)
		}
		return copyJob(rec.job), nil
	case <-timer.C:
		return Job{}, fmt.Errorf("job %q after %s: %w", id, timeout, ErrWaitTimeout)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// ClearCompleted removes all completed jobs and returns how many were removed.
// Non-terminal and failed jobs are never touched. The call is idempotent.
func (q *Queue) ClearCompleted() int {
	q.mu.Lock()
	removed := 0
	kept := q.order[:0]
	for _, rec := range q.order {
		if rec.job.Status == StatusCompleted {
			delete(q.jobs, rec.job.ID)
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	for i := len(kept); i < len(q.order); i++ {
		q.order[i] = nil
	}
	q.order = kept
	q.mu.Unlock()

	if removed > 0 {
		q.emit(Event{Type: EventCleanup, Removed: removed, Time: q.clock.Now()})
	}
	return removed
}

// Stats returns a point-in-time summary of the queue's contents.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Stats{CountByStatus: make(map[Status]int)}
	var totalProcessingTime time.Duration
	measuredCompleted := 0
	completed, failed := 0, 0
	for _, rec := range q.order {
		st.Total++
		st.CountByStatus[rec.job.Status]++
		switch rec.job.Status {
		case StatusCompleted:
			completed++
			if rec.job.StartedAt != nil && rec.job.CompletedAt != nil {
				totalProcessingTime += rec.job.CompletedAt.Sub(*rec.job.StartedAt)
				measuredCompleted++
			}
		case StatusFailed:
			failed++
		}
	}
	if measuredCompleted > 0 {
		st.AverageProcessingTime = totalProcessingTime / time.Duration(measuredCompleted)
	}
	if completed+failed > 0 {
		st.SuccessRate = float64(completed) / float64(completed+failed)
	}
	return st
}

// Run executes the dispatch and retention loops until ctx is canceled, then
// waits for in-flight handlers to finish. It implements service.Worker and
// may be wrapped into a service.WorkerUnit.
func (q *Queue) Run(ctx context.Context) error {
	dispatchTicker := q.clock.Ticker(q.dispatchInterval)
	defer dispatchTicker.Stop()
	retentionTicker := q.clock.Ticker(q.retentionInterval)
	defer retentionTicker.Stop()

	q.logger.Info("job queue started",
		log.Int("max_concurrent", q.maxConcurrent),
		log.Duration("dispatch_interval", q.dispatchInterval),
		log.Duration("job_timeout", q.jobTimeout))

	for {
		select {
		case <-ctx.Done():
			q.wg.Wait()
			q.logger.Info("job queue stopped")
			return nil
		case <-q.wake:
		case <-dispatchTicker.C:
		case <-retentionTicker.C:
			q.trimCompleted()
			continue
		}
		q.dispatch(ctx)
	}
}

// dispatch starts eligible jobs while free concurrency slots remain.
func (q *Queue) dispatch(ctx context.Context) {
	for {
		if !q.slots.TryAcquire() {
			return
		}
		rec, h, snapshot := q.takeEligible()
		if rec == nil {
			q.slots.Release()
			return
		}
		q.wg.Add(1)
		go q.runJob(ctx, rec, h, snapshot)
	}
}

// takeEligible selects the next job to run: priority classes are scanned in
// strict order and within a class jobs are scanned in submission order.
// The selected job is transitioned to processing before the lock is released,
// so two dispatches can never pick the same job.
func (q *Queue) takeEligible() (*jobRecord, Handler, Job) {
	now := q.clock.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, priority := range priorityScanOrder {
		for _, rec := range q.order {
			if rec.job.Priority != priority || !q.eligibleLocked(rec, now) {
				continue
			}
			rec.job.Status = StatusProcessing
			rec.job.Attempts++
			startedAt := now
			rec.job.StartedAt = &startedAt
			return rec, q.handlers[rec.job.Type], copyJob(rec.job)
		}
	}
	return nil, nil, Job{}
}

func (q *Queue) eligibleLocked(rec *jobRecord, now time.Time) bool {
	switch rec.job.Status {
	case StatusPending:
		return true
	case StatusRetrying:
		return rec.job.NextRetryAt != nil && !rec.job.NextRetryAt.After(now)
	}
	return false
}

type handlerResult struct {
	value interface{}
	err   error
}

// runJob executes one attempt of a job, racing the handler against the
// per-job timeout. On timeout the handler's context is canceled and the
// concurrency slot is held until the handler actually returns, so a handler
// that ignores cancellation delays its slot but never corrupts the bound.
func (q *Queue) runJob(ctx context.Context, rec *jobRecord, h Handler, snapshot Job) {
	defer q.wg.Done()

	q.emit(Event{Type: EventJobProcessing, Job: &snapshot, Time: q.clock.Now()})

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resCh := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				resCh <- handlerResult{err: fmt.Errorf("handler panic: %+v", p)}
			}
		}()
		value, err := h(jobCtx, snapshot.Payload, snapshot)
		resCh <- handlerResult{value: value, err: err}
	}()

	timer := q.clock.Timer(q.jobTimeout)
	defer timer.Stop()

	timedOut := false
	var res handlerResult
	select {
	case res = <-resCh:
	case <-timer.C:
		timedOut = true
		cancel()
		res = handlerResult{err: fmt.Errorf("job processing timed out after %s", q.jobTimeout)}
	}

	q.settle(rec, res)

	if timedOut {
		<-resCh
	}
	q.slots.Release()
	q.wakeUp()
}

// settle applies the outcome of one attempt to the job's state machine.
func (q *Queue) settle(rec *jobRecord, res handlerResult) {
	now := q.clock.Now()
	q.mu.Lock()

	if res.err == nil {
		rec.job.Status = StatusCompleted
		rec.job.Result = res.value
		rec.job.Error = ""
		rec.job.NextRetryAt = nil
		completedAt := now
		rec.job.CompletedAt = &completedAt
		close(rec.done)
		snapshot := copyJob(rec.job)
		q.mu.Unlock()
		q.emit(Event{Type: EventJobCompleted, Job: &snapshot, Time: now})
		return
	}

	rec.job.Error = res.err.Error()
	if rec.job.Attempts < rec.job.MaxAttempts {
		if rec.backoff == nil {
			rec.backoff = q.retryPolicy.NewBackOff()
		}
		if delay := rec.backoff.NextBackOff(); delay != backoff.Stop {
			nextRetryAt := now.Add(delay)
			rec.job.Status = StatusRetrying
			rec.job.NextRetryAt = &nextRetryAt
			snapshot := copyJob(rec.job)
			q.mu.Unlock()
			q.emit(Event{Type: EventJobRetrying, Job: &snapshot, Time: now})
			return
		}
	}

	rec.job.Status = StatusFailed
	rec.job.NextRetryAt = nil
	completedAt := now
	rec.job.CompletedAt = &completedAt
	close(rec.done)
	snapshot := copyJob(rec.job)
	q.mu.Unlock()
	q.emit(Event{Type: EventJobFailed, Job: &snapshot, Time: now})
}

// trimCompleted removes the oldest completed jobs beyond the retention cap.
func (q *Queue) trimCompleted() {
	q.mu.Lock()
	var completed []*jobRecord
	for _, rec := range q.order {
		if rec.job.Status == StatusCompleted {
			completed = append(completed, rec)
		}
	}
	excess := len(completed) - q.maxCompletedJobs
	if excess <= 0 {
		q.mu.Unlock()
		return
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].job.CompletedAt.Before(*completed[j].job.CompletedAt)
	})
	for _, rec := range completed[:excess] {
		delete(q.jobs, rec.job.ID)
		q.removeFromOrderLocked(rec)
	}
	q.mu.Unlock()

	q.emit(Event{Type: EventCleanup, Removed: excess, Time: q.clock.Now()})
}

func (q *Queue) removeFromOrderLocked(rec *jobRecord) {
	for i, r := range q.order {
		if r == rec {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func (q *Queue) emit(e Event) {
	q.mu.Lock()
	listeners := make([]EventListener, len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()
	for _, l := range listeners {
		l.HandleQueueEvent(e)
	}
}

func (q *Queue) wakeUp() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
